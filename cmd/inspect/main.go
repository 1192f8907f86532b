package main

import (
	"campus-chat/infrastructure/storage"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// Config shares BADGER_FILEPATH with the server; flags take precedence.
type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH"`
	// INSPECT_COLOURS enables colorized summary lines
	Colours bool `envconfig:"INSPECT_COLOURS" default:"true"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Invalid environment: ", err)
	}
	defaultPath := cfg.BadgerFilepath
	if defaultPath == "" {
		defaultPath = database.DefaultPath
	}
	dbPath := flag.String("db", defaultPath, "Path to badger DB")
	limit := flag.Int("limit", 100, "Number of most recent messages to list")
	purge := flag.Bool("purge", false, "Delete every stored message")
	flag.Parse()

	// Read-only unless purging
	options := badger.DefaultOptions(*dbPath).WithLoggingLevel(badger.ERROR)
	if !*purge {
		options = options.WithReadOnly(true).WithBypassLockGuard(true)
	}
	db, err := badger.Open(options)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	repository, err := storage.NewMessageRepository(db, slog.Default())
	if err != nil {
		log.Fatal("Error while opening the message store: ", err)
	}
	defer repository.Close()

	if *purge {
		deleted, err := repository.Clear()
		if err != nil {
			log.Fatal("Purge failed: ", err)
		}
		summary(cfg.Colours, color.New(color.FgRed), fmt.Sprintf("%d messages deleted", deleted))
		return
	}

	count, err := repository.Count()
	if err != nil {
		log.Fatal("Count failed: ", err)
	}
	messages, err := repository.Recent(*limit)
	if err != nil {
		log.Fatal("Read failed: ", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Seq", "Timestamp", "ID", "Author", "Content"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, message := range messages {
		table.Append([]string{
			strconv.FormatUint(message.Seq, 10),
			message.CreatedAt.Format(time.RFC3339Nano),
			message.ID.String(),
			message.Author,
			truncate(message.Content, 60),
		})
	}
	table.Render()
	summary(cfg.Colours, color.New(color.BgBlack, color.FgGreen), fmt.Sprintf("%d of %d stored messages shown", len(messages), count))
}

func summary(colours bool, style color.Style, line string) {
	if colours {
		line = style.Render(line)
	}
	fmt.Println()
	fmt.Println(line)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
