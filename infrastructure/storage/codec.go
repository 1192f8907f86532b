package storage

import (
	"campus-chat/domain/chat"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the stored message record.
// They must never be renumbered, only appended.
const (
	fieldID        protowire.Number = 1
	fieldSeq       protowire.Number = 2
	fieldAuthor    protowire.Number = 3
	fieldContent   protowire.Number = 4
	fieldCreatedAt protowire.Number = 5
)

func encodeMessage(message chat.Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, message.ID[:])
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, message.Seq)
	b = protowire.AppendTag(b, fieldAuthor, protowire.BytesType)
	b = protowire.AppendString(b, message.Author)
	b = protowire.AppendTag(b, fieldContent, protowire.BytesType)
	b = protowire.AppendString(b, message.Content)
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(message.CreatedAt.UnixNano()))
	return b
}

// decodeMessage skips unknown fields so older binaries can read newer records.
func decodeMessage(b []byte) (chat.Message, error) {
	var message chat.Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return chat.Message{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldID && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				id, err := uuid.FromBytes(v)
				if err != nil {
					return chat.Message{}, fmt.Errorf("invalid message id: %w", err)
				}
				message.ID = id
			}
		case num == fieldSeq && typ == protowire.VarintType:
			message.Seq, n = protowire.ConsumeVarint(b)
		case num == fieldAuthor && typ == protowire.BytesType:
			message.Author, n = protowire.ConsumeString(b)
		case num == fieldContent && typ == protowire.BytesType:
			message.Content, n = protowire.ConsumeString(b)
		case num == fieldCreatedAt && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			message.CreatedAt = time.Unix(0, int64(v)).UTC()
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return chat.Message{}, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return message, nil
}
