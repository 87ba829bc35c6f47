package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/tripagent/internal/transport/ws"
)

func newChatCmd() *cobra.Command {
	var addr, sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialChat(addr)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Hello(sessionID); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session: %s\n", client.sessionID)
			fmt.Fprintln(out, "Type a message and press Enter. /quit to exit.")
			return client.Loop(cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:8080/ws", "WebSocket server address")
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session")
	return cmd
}

// chatClient is a line-oriented WebSocket client.
type chatClient struct {
	conn      *websocket.Conn
	sessionID string
}

func dialChat(addr string) (*chatClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &chatClient{conn: conn}, nil
}

func (c *chatClient) Close() error {
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Hello binds the connection to a session and waits for hello_ack.
func (c *chatClient) Hello(sessionID string) error {
	msg := ws.HelloMessage{BaseMessage: ws.BaseMessage{
		Type:      ws.TypeHello,
		Ts:        time.Now().UnixMilli(),
		SessionID: sessionID,
	}}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	var ack ws.ErrorMessage
	if err := c.conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}
	switch ack.Type {
	case ws.TypeHelloAck:
		c.sessionID = ack.SessionID
		return nil
	case ws.TypeError:
		return fmt.Errorf("hello failed: %s - %s", ack.Code, ack.Message)
	default:
		return fmt.Errorf("expected hello_ack, got: %s", ack.Type)
	}
}

// Loop sends each input line as a turn and prints the streamed reply.
func (c *chatClient) Loop(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/quit":
			fmt.Fprintln(out, "Bye!")
			return nil
		}

		requestID := fmt.Sprintf("req_%d", time.Now().UnixNano())
		msg := ws.ChatMessage{
			BaseMessage: ws.BaseMessage{
				Type:      ws.TypeChat,
				Ts:        time.Now().UnixMilli(),
				RequestID: requestID,
				SessionID: c.sessionID,
			},
			Content: input,
		}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		if err := c.readReply(requestID, out); err != nil {
			return err
		}
	}
}

// readReply prints deltas until the done or error message of the request.
func (c *chatClient) readReply(requestID string, out io.Writer) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var base ws.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			continue
		}
		// Other tabs of the session may stream their own turns.
		if base.RequestID != requestID {
			continue
		}

		switch base.Type {
		case ws.TypeDelta:
			var delta ws.DeltaMessage
			if err := json.Unmarshal(data, &delta); err == nil {
				fmt.Fprint(out, delta.Text)
			}
		case ws.TypeDone:
			var done ws.DoneMessage
			_ = json.Unmarshal(data, &done)
			fmt.Fprintln(out)
			if done.PlanID != "" {
				fmt.Fprintf(out, "[plan %s]\n", done.PlanID)
			}
			if done.Retryable {
				fmt.Fprintln(out, "[planning can be retried]")
			}
			return nil
		case ws.TypeError:
			var e ws.ErrorMessage
			_ = json.Unmarshal(data, &e)
			fmt.Fprintf(out, "error: %s - %s\n", e.Code, e.Message)
			return nil
		}
	}
}
