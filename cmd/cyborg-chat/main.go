// ABOUTME: Terminal client for chatting with cyborg-gateway over SSE
// ABOUTME: Streams assistant replies through the coalescer with rollback on failure

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/NEARBuilders/cyborg-gateway/internal/chatui"
	"github.com/NEARBuilders/cyborg-gateway/internal/sse"
)

// chatRequest is the JSON body sent to POST /chat/stream.
type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// chunkData is the payload of a chunk frame.
type chunkData struct {
	Content string `json:"content"`
}

// completeData is the payload of the terminal complete frame.
type completeData struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// errorData is the payload of the terminal error frame.
type errorData struct {
	Message string `json:"message"`
}

// conversationInfo is one row of GET /conversations.
type conversationInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updatedAt"`
}

type listConversationsResponse struct {
	Conversations []conversationInfo `json:"conversations"`
}

// messageInfo is one message of GET /conversations/{id}.
type messageInfo struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

type conversationDetailResponse struct {
	Messages []messageInfo `json:"messages"`
}

// client holds the connection settings and the current conversation.
type client struct {
	server         string
	token          string
	conversationID string
	coalescer      *chatui.Coalescer
	render         *renderer
}

// renderer prints streamed assistant text incrementally. The coalescer hands
// it full message-list snapshots; it tracks how much of the current
// assistant reply has already been written to the terminal.
type renderer struct {
	mu      sync.Mutex
	printed int
}

func (r *renderer) reset() {
	r.mu.Lock()
	r.printed = 0
	r.mu.Unlock()
}

func (r *renderer) update(msgs []chatui.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != "assistant" {
			continue
		}
		if len(msgs[i].Content) > r.printed {
			fmt.Print(msgs[i].Content[r.printed:])
			r.printed = len(msgs[i].Content)
		}
		return
	}
}

func notify(message string) {
	color.New(color.FgRed).Printf("\n[error] %s\n", message)
}

func main() {
	server := flag.String("server", "", "Gateway server URL (overrides config)")
	conversationID := flag.String("conversation", "", "Conversation ID to resume")
	flag.Parse()

	cfg, err := loadConfig(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.Gateway.URL = strings.TrimSuffix(*server, "/")
	}

	fmt.Printf("cyborg-chat connected to %s\n", cfg.Gateway.URL)
	if cfg.Gateway.Token != "" {
		fmt.Println("Auth: session token configured")
	} else {
		fmt.Println("Auth: none (set CYBORG_TOKEN or gateway.token in chat.toml)")
	}
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	render := &renderer{}
	c := &client{
		server:         cfg.Gateway.URL,
		token:          cfg.Gateway.Token,
		conversationID: *conversationID,
		render:         render,
	}
	c.coalescer = chatui.New(render.update, notify)

	if err := c.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func (c *client) run(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if c.conversationID != "" {
			fmt.Printf("[%s]> ", shortID(c.conversationID))
		} else {
			fmt.Print("> ")
		}

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if input == "/help" {
			printHelp()
			fmt.Println()
			continue
		}

		if input == "/new" {
			c.conversationID = ""
			fmt.Println("Starting a fresh conversation")
			fmt.Println()
			continue
		}

		if input == "/conversations" {
			if err := c.listConversations(ctx); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		if strings.HasPrefix(input, "/open") {
			id := strings.TrimSpace(strings.TrimPrefix(input, "/open"))
			if id == "" {
				fmt.Println("Usage: /open <conversation-id>")
			} else if err := c.openConversation(ctx, id); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		if err := c.sendMessage(ctx, input); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
		fmt.Println()
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /conversations   List your conversations")
	fmt.Println("  /open <id>       Resume a conversation and show its history")
	fmt.Println("  /new             Start a fresh conversation")
	fmt.Println("  /help            Show this help")
	fmt.Println("  /quit            Exit")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// newRequest builds an authenticated request against the gateway.
func (c *client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.server+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// serverError extracts the JSON error message from a non-200 response.
func serverError(resp *http.Response) error {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			if msg, ok := errResp["error"]; ok {
				return fmt.Errorf("%s", msg)
			}
		}
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}

// listConversations fetches and displays the caller's conversations.
func (c *client) listConversations(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/conversations", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching conversations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}

	var list listConversationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if len(list.Conversations) == 0 {
		fmt.Println("No conversations yet")
		return nil
	}

	fmt.Println("Conversations:")
	for _, conv := range list.Conversations {
		fmt.Printf("  %s  %s  (%s)\n", shortID(conv.ID), conv.Title, conv.UpdatedAt)
	}
	return nil
}

// openConversation resumes a conversation and prints its recent history.
func (c *client) openConversation(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/conversations/"+id+"?limit=20", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}

	var detail conversationDetailResponse
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	c.conversationID = id
	fmt.Println(strings.Repeat("-", 60))
	for _, msg := range detail.Messages {
		switch msg.Role {
		case "user":
			color.New(color.FgBlue).Print("you: ")
		case "assistant":
			color.New(color.FgGreen).Print("bot: ")
		default:
			continue
		}
		fmt.Println(msg.Content)
	}
	fmt.Println(strings.Repeat("-", 60))
	return nil
}

// sendMessage runs one streamed turn through the coalescer. Pre-stream HTTP
// failures roll the turn back; frame-level errors arrive via OnError.
func (c *client) sendMessage(ctx context.Context, content string) error {
	bodyBytes, err := json.Marshal(chatRequest{
		Message:        content,
		ConversationID: c.conversationID,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	turnCtx, abort := context.WithCancel(ctx)
	defer abort()

	c.render.reset()
	c.coalescer.Begin(content, abort)

	req, err := c.newRequest(turnCtx, http.MethodPost, "/chat/stream", bytes.NewReader(bodyBytes))
	if err != nil {
		c.coalescer.Cancel()
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.coalescer.Cancel()
		if turnCtx.Err() != nil {
			return nil
		}
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.coalescer.Cancel()
		return serverError(resp)
	}

	return c.consumeStream(resp.Body)
}

// consumeStream feeds SSE frames into the coalescer until the terminal event.
func (c *client) consumeStream(body io.Reader) error {
	reader := sse.NewReader(body)

	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			// Stream ended without a terminal frame; discard the partial turn
			c.coalescer.Cancel()
			return errors.New("stream ended unexpectedly")
		}
		if err != nil {
			c.coalescer.Cancel()
			return fmt.Errorf("reading stream: %w", err)
		}

		switch ev.Type {
		case "chunk":
			var data chunkData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				continue
			}
			c.coalescer.OnChunk(data.Content)
		case "complete":
			var data completeData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				c.coalescer.Cancel()
				return fmt.Errorf("malformed complete frame: %w", err)
			}
			c.coalescer.OnComplete(data.MessageID)
			c.conversationID = data.ConversationID
			fmt.Println()
			return nil
		case "error":
			var data errorData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				data.Message = "unknown stream error"
			}
			c.coalescer.OnError(data.Message)
			return nil
		}
	}
}
