// Command-line client for the MindMesh assistant
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mindmesh/mindmesh/config"
	"mindmesh/mindmesh/services/chat"
	"mindmesh/mindmesh/services/digest"
	"mindmesh/mindmesh/services/llm"
	"mindmesh/mindmesh/sources/psql"
	"mindmesh/mindmesh/sources/psql/dao"
	"mindmesh/mindmesh/sources/psql/models"
	"mindmesh/mindmesh/sources/storage"
	"mindmesh/mindmesh/utils/color"
	"mindmesh/mindmesh/utils/jsonutils"
	"mindmesh/mindmesh/utils/logging"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var conversationFlag string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mindmesh",
	Short: "Terminal client for the MindMesh assistant",
	Long: `mindmesh talks to the MindMesh assistant from a terminal.

It uses the same database and inference gateway as the server, acting as the
user named by CLI_OWNER_ID.`,
	SilenceUsage: true,
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session.

Examples:
  # Start a new conversation
  mindmesh connect

  # Continue an existing conversation
  mindmesh connect --conversation 6f1c2b7e-0d8e-4d59-9b55-8a3a0f2f4c11`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Print this week's digest as JSON",
	Args:  cobra.NoArgs,
	RunE:  runDigest,
}

func init() {
	connectCmd.Flags().StringVar(&conversationFlag, "conversation", "", "conversation id to continue")
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(digestCmd)
}

type deps struct {
	cfg     config.Config
	db      *psql.Database
	gateway *llm.GatewayClient
}

func setup() (*deps, error) {
	cfg := config.LoadConfig()
	logging.InitLogger(cfg.LogDir)
	if cfg.CLIOwnerID == "" {
		return nil, errors.New("CLI_OWNER_ID is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := psql.NewDatabase(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("database connection error", zap.Error(err))
		return nil, fmt.Errorf("database connection error: %w", err)
	}
	gw := llm.NewGatewayClient(llm.GatewayConfig{
		URL:     cfg.GatewayURL,
		APIKey:  cfg.GatewayAPIKey,
		Model:   cfg.GatewayModel,
		Timeout: cfg.GatewayTimeout,
	})
	return &deps{cfg: cfg, db: db, gateway: gw}, nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	d, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync()
	defer d.db.Close()

	var convID uuid.UUID
	if conversationFlag != "" {
		if convID, err = uuid.Parse(conversationFlag); err != nil {
			return fmt.Errorf("invalid conversation id %q", conversationFlag)
		}
	}

	p := chat.NewPipeline(dao.NewChatDAO(d.db.DB), d.gateway, d.cfg.CLIOwnerID,
		chat.WithMaxFrameBytes(d.cfg.MaxFrameBytes))
	defer p.Close()

	logging.AppLogger.Info("cli session started",
		zap.String("owner_id", d.cfg.CLIOwnerID),
		zap.String("conversation_id", conversationFlag))

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	s := &session{pipeline: p, out: cmd.OutOrStdout()}
	return s.run(context.Background(), cmd.InOrStdin(), convID, interrupts)
}

func runDigest(cmd *cobra.Command, args []string) error {
	d, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync()
	defer d.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.GatewayTimeout)
	defer cancel()

	var archive digest.Archive
	if d.cfg.MinIOEndpoint != "" {
		client, err := storage.NewMinIOClient(ctx, d.cfg)
		if err != nil {
			logging.ErrorLogger.Error("minio connection error", zap.Error(err))
		} else {
			archive = client
		}
	}

	svc := digest.NewService(dao.NewDigestDAO(d.db.DB), d.gateway, archive)
	out, err := svc.Generate(ctx, d.cfg.CLIOwnerID, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), jsonutils.ToJSON(out))
	return nil
}

// session is one interactive chat. It tracks the active conversation and the
// history sent with each message.
type session struct {
	pipeline       *chat.Pipeline
	out            io.Writer
	conversationID uuid.UUID
	prior          []models.Message
}

func (s *session) run(ctx context.Context, in io.Reader, convID uuid.UUID, interrupts <-chan os.Signal) error {
	if convID != uuid.Nil {
		if err := s.open(ctx, convID); err != nil {
			return err
		}
	}

	fmt.Fprintf(s.out, "\n%s\n", color.Info("MindMesh assistant connected."))
	fmt.Fprintln(s.out, color.Dim("Commands: /new, /list, /open <id>, exit. Ctrl-C stops a reply."))
	fmt.Fprintln(s.out)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(s.out, color.Prompt("you> "))
		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			line = strings.TrimSpace(l)
		case <-interrupts:
			fmt.Fprintln(s.out, "\nGoodbye!")
			return nil
		}

		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		case line == "/new":
			s.conversationID = uuid.Nil
			s.prior = nil
			fmt.Fprintln(s.out, color.Info("Started a new conversation."))
		case line == "/list":
			s.list(ctx)
		case strings.HasPrefix(line, "/open "):
			id, err := uuid.Parse(strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
			if err != nil {
				fmt.Fprintln(s.out, color.Error("Invalid conversation id."))
				continue
			}
			if err := s.open(ctx, id); err != nil {
				fmt.Fprintln(s.out, color.Error(err.Error()))
			}
		default:
			s.send(ctx, line, interrupts)
		}
	}
}

func (s *session) open(ctx context.Context, id uuid.UUID) error {
	msgs, err := s.pipeline.ListMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("cannot open conversation %s: %w", id, err)
	}
	s.conversationID = id
	s.prior = msgs
	fmt.Fprintln(s.out, color.Info(fmt.Sprintf("Opened conversation with %d messages.", len(msgs))))
	return nil
}

func (s *session) list(ctx context.Context) {
	convs, err := s.pipeline.ListConversations(ctx)
	if err != nil {
		fmt.Fprintln(s.out, color.Error(err.Error()))
		return
	}
	if len(convs) == 0 {
		fmt.Fprintln(s.out, color.Dim("No conversations yet."))
		return
	}
	for _, c := range convs {
		marker := " "
		if c.ID == s.conversationID {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s %s  %s  %s\n", marker, c.ID, c.Title,
			color.Dim(c.UpdatedAt.Local().Format("Jan 2 15:04")))
	}
}

// send streams one reply. An interrupt while it streams cancels only the reply.
func (s *session) send(ctx context.Context, text string, interrupts <-chan os.Signal) {
	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-interrupts:
			cancel()
		case <-done:
		}
	}()

	fmt.Fprint(s.out, color.Prompt("mindmesh> "))
	res, err := s.pipeline.SendMessage(sendCtx, s.conversationID, text, s.prior,
		func(delta string) { fmt.Fprint(s.out, color.Reply(delta)) },
		func(string) { fmt.Fprintln(s.out) },
	)
	if res != nil {
		s.conversationID = res.ConversationID
		if res.UserMessage != nil {
			s.prior = append(s.prior, *res.UserMessage)
		}
		if res.AssistantMessage != nil {
			s.prior = append(s.prior, *res.AssistantMessage)
		}
	}
	if err != nil {
		s.report(err)
	}
}

func (s *session) report(err error) {
	switch chat.ErrorCode(err) {
	case chat.CodeRateLimited, chat.CodeQuotaExhausted:
		fmt.Fprintln(s.out, "\n"+color.Warning(err.Error()))
	case chat.CodeCanceled:
		fmt.Fprintln(s.out, "\n"+color.Dim("(reply stopped)"))
	case chat.CodePersistenceFailed:
		fmt.Fprintln(s.out, color.Error("The reply could not be saved: "+err.Error()))
	default:
		fmt.Fprintln(s.out, "\n"+color.Error(err.Error()))
	}
}
