//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/runtime"
	"context"
)

type IChatService interface {
	PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error)
	GetMessages(cmd chat.GetMessageCommand) ([]chat.Message, error)
	Join(connectionID string, sink contract.EventSink)
	Leave(connectionID string)
}

type ChatService struct {
	orchestrator *runtime.Orchestrator
}

func NewChatService(o *runtime.Orchestrator) *ChatService {
	return &ChatService{orchestrator: o}
}

func (s *ChatService) PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error) {
	return s.orchestrator.PostMessage(ctx, cmd)
}

func (s *ChatService) GetMessages(cmd chat.GetMessageCommand) ([]chat.Message, error) {
	return s.orchestrator.GetMessages(cmd)
}

func (s *ChatService) Join(connectionID string, sink contract.EventSink) {
	s.orchestrator.RegisterParticipant(connectionID, sink)
}

func (s *ChatService) Leave(connectionID string) {
	s.orchestrator.UnregisterParticipant(connectionID)
}
