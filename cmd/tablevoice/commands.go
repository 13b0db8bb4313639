package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/config"
	"github.com/kalambet/tablevoice/internal/dialogue"
	"github.com/kalambet/tablevoice/internal/logging"
	"github.com/kalambet/tablevoice/internal/speech"
	"github.com/kalambet/tablevoice/internal/weather"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Book a table by typing instead of speaking",
	Long: `Book a table by typing instead of speaking. Each line is one utterance.

By default the conversation runs on the tablevoice server over HTTP.
  tablevoice chat          talk to the running server
  tablevoice chat --ws     talk to the running server over its websocket
  tablevoice chat --local  run the conversation in this process`,
	RunE: func(cmd *cobra.Command, args []string) error {
		useWS, _ := cmd.Flags().GetBool("ws")
		local, _ := cmd.Flags().GetBool("local")
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		out := cmd.OutOrStdout()

		switch {
		case local:
			return runLocalChat(ctx, os.Stdin, out)
		case useWS:
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			return chatWS(ctx, wsURL(client.baseURL), os.Stdin, out)
		default:
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			return chatHTTP(ctx, client, os.Stdin, out)
		}
	},
}

func init() {
	chatCmd.Flags().Bool("ws", false, "use the websocket transport")
	chatCmd.Flags().Bool("local", false, "run without a server")
	chatCmd.MarkFlagsMutuallyExclusive("ws", "local")
}

func isQuit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "quit", "exit", "bye":
		return true
	}
	return false
}

type chatReply struct {
	Reply string `json:"reply"`
	Step  string `json:"step"`
}

// chatHTTP runs a conversation through the utterance endpoint.
func chatHTTP(ctx context.Context, client *apiClient, in io.Reader, out io.Writer) error {
	resp, err := client.post(ctx, "/api/conversations", nil)
	if err != nil {
		return err
	}
	var snap struct {
		Step         string `json:"step"`
		AgentMessage string `json:"agentMessage"`
	}
	if err := decodeJSON(resp, &snap); err != nil {
		return err
	}
	printAgent(out, snap.Step, snap.AgentMessage)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if isQuit(line) {
			break
		}
		resp, err := client.post(ctx, "/api/conversations/current/utterances", map[string]string{"text": line})
		if err != nil {
			return err
		}
		var r chatReply
		if err := decodeJSON(resp, &r); err != nil {
			printWarning("%v", err)
			continue
		}
		printAgent(out, r.Step, r.Reply)
	}
	return scanner.Err()
}

func wsURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	u.Scheme = "ws"
	if strings.HasPrefix(baseURL, "https") {
		u.Scheme = "wss"
	}
	u.Path = "/api/conversations/current/ws"
	return u.String()
}

// chatWS runs a conversation over the websocket speech transport.
func chatWS(ctx context.Context, endpoint string, in io.Reader, out io.Writer) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		for {
			var f speech.Frame
			if err := conn.ReadJSON(&f); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					err = nil
				}
				done <- err
				return
			}
			step := ""
			if f.Step != nil {
				step = f.Step.String()
			}
			switch f.Type {
			case speech.FrameReply:
				printAgent(out, step, f.Text)
			case speech.FrameError:
				printWarning("%s", f.Message)
			}
		}
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if isQuit(line) {
			break
		}
		if err := conn.WriteJSON(speech.Frame{Type: speech.FrameUtterance, Text: line}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	// Let the last reply arrive before closing.
	time.Sleep(200 * time.Millisecond)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		return nil
	}
}

func runLocalChat(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(cfg.Log.Level)}))
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sess := a.sessions.Create()
	defer a.sessions.Close(ctx, sess.ID())
	return chatLocal(ctx, sess, in, out)
}

// chatLocal feeds lines from in through a speech pump into conv.
func chatLocal(ctx context.Context, conv speech.Conversation, in io.Reader, out io.Writer) error {
	printAgent(out, conv.Step().String(), conv.AgentMessage())

	pump := speech.NewPump(conv, 4, nil)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for r := range pump.Replies() {
			printAgent(out, r.Step.String(), r.Text)
		}
	}()
	runErr := make(chan error, 1)
	go func() { runErr <- pump.Run(ctx) }()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if isQuit(line) {
			break
		}
		if err := pump.Submit(ctx, line); err != nil {
			printWarning("%v", err)
		}
	}
	pump.Close()
	err := <-runErr
	<-printed
	if err != nil {
		return err
	}
	return scanner.Err()
}

// --- bookings ---

var bookingsCmd = &cobra.Command{
	Use:   "bookings",
	Short: "Manage saved bookings",
}

var bookingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookings, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listBookings(cmd.Context(), client, limit, cmd.OutOrStdout())
	},
}

func listBookings(ctx context.Context, client *apiClient, limit int, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := client.get(ctx, fmt.Sprintf("/api/bookings?limit=%d", limit))
	if err != nil {
		return err
	}
	var bookings []booking.Booking
	if err := decodeJSON(resp, &bookings); err != nil {
		return err
	}
	if len(bookings) == 0 {
		fmt.Fprintln(out, "No bookings found.")
		return nil
	}
	for _, b := range bookings {
		id := b.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(out, "%s  %s %s  %-20s %2d guests  %s\n",
			colorize(colorCyan, id),
			b.Date.Format(time.DateOnly),
			b.Time,
			b.CustomerName,
			b.NumberOfGuests,
			b.Seating,
		)
	}
	return nil
}

var bookingsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single booking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(context.Background(), "/api/bookings/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var b any
		if err := decodeJSON(resp, &b); err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	},
}

var bookingsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a booking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(context.Background(), "/api/bookings/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("%s", result["message"])
		return nil
	},
}

func init() {
	bookingsListCmd.Flags().Int("limit", 20, "maximum number of bookings to list")
	bookingsCmd.AddCommand(bookingsListCmd)
	bookingsCmd.AddCommand(bookingsShowCmd)
	bookingsCmd.AddCommand(bookingsDeleteCmd)
}

// --- weather ---

var weatherCmd = &cobra.Command{
	Use:   "weather <date>",
	Short: "Preview the weather and seating for a date",
	Long: `Preview the weather and seating for a date (YYYY-MM-DD).

Examples:
  tablevoice weather 2026-12-20
  tablevoice weather 2026-12-20 --time 7pm --city Boston`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clock, _ := cmd.Flags().GetString("time")
		city, _ := cmd.Flags().GetString("city")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return previewWeather(context.Background(), client, args[0], clock, city, cmd.OutOrStdout())
	},
}

func previewWeather(ctx context.Context, client *apiClient, date, clock, city string, out io.Writer) error {
	q := url.Values{"date": {date}}
	if clock != "" {
		q.Set("time", clock)
	}
	if city != "" {
		q.Set("city", city)
	}
	resp, err := client.get(ctx, "/api/weather?"+q.Encode())
	if err != nil {
		return err
	}
	var w weather.Insight
	if err := decodeJSON(resp, &w); err != nil {
		return err
	}
	temp := "n/a"
	if w.TemperatureC != nil {
		temp = fmt.Sprintf("%.1f°C", *w.TemperatureC)
	}
	fmt.Fprintf(out, "%s in %s: %s (%s), %s\n", date, w.City, w.Category, w.Summary, temp)
	fmt.Fprintf(out, "Recommended seating: %s\n", colorize(colorBold, string(w.Seating())))
	return nil
}

func init() {
	weatherCmd.Flags().String("time", "", "reservation time, e.g. 7pm")
	weatherCmd.Flags().String("city", "", "city (defaults to the server's)")
}

// --- transcripts ---

var transcriptsCmd = &cobra.Command{
	Use:   "transcripts",
	Short: "List archived conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		verbose, _ := cmd.Flags().GetBool("verbose")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		session, _ := cmd.Flags().GetString("session")
		path := fmt.Sprintf("/api/transcripts?limit=%d", limit)
		if session != "" {
			path = "/api/transcripts?session=" + url.QueryEscape(session)
		}
		resp, err := client.get(context.Background(), path)
		if err != nil {
			return err
		}
		var ts []dialogue.Transcript
		if err := decodeJSON(resp, &ts); err != nil {
			return err
		}
		printTranscripts(cmd.OutOrStdout(), ts, verbose)
		return nil
	},
}

func printTranscripts(out io.Writer, ts []dialogue.Transcript, verbose bool) {
	if len(ts) == 0 {
		fmt.Fprintln(out, "No transcripts found.")
		return
	}
	for _, t := range ts {
		id := t.SessionID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(out, "%s  %s  %-9s %-18s %d turns\n",
			colorize(colorCyan, id),
			t.EndedAt.Local().Format("2006-01-02 15:04"),
			t.Outcome,
			t.Step,
			len(t.Turns),
		)
		if !verbose {
			continue
		}
		for _, turn := range t.Turns {
			fmt.Fprintf(out, "    %-5s %s\n", turn.Sender+":", turn.Text)
		}
	}
}

func init() {
	transcriptsCmd.Flags().Int("limit", 20, "maximum number of transcripts")
	transcriptsCmd.Flags().BoolP("verbose", "v", false, "print every turn")
	transcriptsCmd.Flags().String("session", "", "only transcripts of this conversation id")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
