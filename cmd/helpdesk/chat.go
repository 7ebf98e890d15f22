package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/helpdesk/internal/client"
)

func chatCMD() *cobra.Command {
	var server, sessionID string
	var chat = &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		Long: `Talk to the assistant from the terminal.

Type a question and press enter. When topics are offered, answer with the
topic number. Commands: /escalate [reason], /status, /history, /rate <n> <1-5>,
/new, /quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(server)
			cv := c.NewConversation()
			if sessionID != "" {
				cv = c.ResumeConversation(sessionID)
			}
			defer cv.Wait()
			return runChat(cmd, cv, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	chat.Flags().StringVarP(&server, "server", "s", "http://localhost:8000", "helpdesk server URL")
	chat.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	return chat
}

func runChat(cmd *cobra.Command, cv *client.Conversation, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	scanner := bufio.NewScanner(in)

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return nil
		case line == "/new":
			cv.Reset()
			fmt.Fprintln(out, "new conversation")
		case line == "/status":
			status, err := cv.EscalationStatus(ctx)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				break
			}
			fmt.Fprintf(out, "ticket %s: %s\n", status.EscalationID, status.Status)
		case line == "/history":
			turns, err := cv.Transcript(ctx)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				break
			}
			for _, t := range turns {
				fmt.Fprintf(out, "[%s] %s\n", t.Role, t.Content)
			}
		case strings.HasPrefix(line, "/escalate"):
			reason := strings.TrimSpace(strings.TrimPrefix(line, "/escalate"))
			resp, err := cv.Escalate(ctx, reason, "")
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				break
			}
			fmt.Fprintln(out, resp.Message)
		case strings.HasPrefix(line, "/rate"):
			fields := strings.Fields(line)
			if len(fields) != 3 {
				fmt.Fprintln(out, "usage: /rate <message index> <1-5>")
				break
			}
			idx, err1 := strconv.Atoi(fields[1])
			rating, err2 := strconv.Atoi(fields[2])
			if err1 != nil || err2 != nil {
				fmt.Fprintln(out, "usage: /rate <message index> <1-5>")
				break
			}
			cv.Feedback(idx, rating, "")
		default:
			turn, err := send(cmd, cv, line)
			if err != nil && !errors.Is(err, client.ErrOutcomeUnknown) && turn == nil {
				fmt.Fprintln(out, "error:", err)
				break
			}
			printTurn(out, turn)
			if errors.Is(err, client.ErrOutcomeUnknown) {
				fmt.Fprintln(out, "(the request timed out; the message may or may not have been received)")
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

// send answers a pending clarification by number, otherwise sends text
func send(cmd *cobra.Command, cv *client.Conversation, line string) (*client.Turn, error) {
	if n, err := strconv.Atoi(line); err == nil {
		turns := cv.Turns()
		if len(turns) > 0 && turns[len(turns)-1].IsClarification() {
			return cv.SelectTopic(cmd.Context(), n)
		}
	}
	return cv.Send(cmd.Context(), line)
}

func printTurn(out io.Writer, t *client.Turn) {
	if t == nil {
		return
	}
	fmt.Fprintln(out, t.Content)
	if t.IsClarification() {
		for i, topic := range t.SuggestedTopics {
			fmt.Fprintf(out, "  %d. %s\n", i+1, topic.Title)
		}
		return
	}
	for _, link := range t.YouTubeLinks {
		fmt.Fprintln(out, "  video:", link)
	}
	if client.OffersEscalation(t) {
		fmt.Fprintln(out, "  (type /escalate to hand this over to an operator)")
	}
}
