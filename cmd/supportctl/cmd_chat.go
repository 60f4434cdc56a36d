package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/app"
	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	chathandler "github.com/boddenberg/support-assistant-bfa-go/internal/chat/handler"
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <message>",
	Short: "Classify one message and print the result as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant on stdin",
	Long: `Start a conversation on stdin. Every line is one user message; the
ticket and the conversation context carry over between lines the same way
the web widget sends them. An empty line or EOF ends the session.`,
	RunE: runChat,
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	cm := a.Classifier.Classify(cmd.Context(), strings.Join(args, " "), nil)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(cm)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return chatLoop(cmd.Context(), a.Chat, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chatLoop feeds each input line to chat, keeping the ticket and context.
func chatLoop(ctx context.Context, chat chathandler.MessageProcessor, in io.Reader, out io.Writer) error {
	var (
		ticket  *maindomain.Ticket
		history []domain.ConversationTurn
	)

	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}

		resp, err := chat.ProcessMessage(ctx, &domain.ChatRequest{
			Message:       line,
			Context:       history,
			CurrentTicket: ticket,
		})
		if err != nil {
			return err
		}
		if resp.UpdatedTicket != nil {
			ticket = resp.UpdatedTicket
		}

		history = append(history, domain.ConversationTurn{Role: domain.RoleUser, Content: line})
		switch {
		case resp.AdminTakeover:
			fmt.Fprintln(out, "[an agent has taken over this conversation]")
		default:
			history = append(history, domain.ConversationTurn{Role: domain.RoleAssistant, Content: resp.Response})
			fmt.Fprintln(out, resp.Response)
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
