// Command popilot is the interactive agentic coding assistant's
// entrypoint: it wires the Session Store, Policy Engine, Tool Executor,
// and Chat Stream Client into an Agentic Loop Controller and drives it
// from a line-oriented stdin/stdout REPL. Rendering a full terminal UI
// is out of scope; this is the plain, scriptable surface the core
// subsystems are exercised through.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/popilot-dev/popilot/internal/applog"
	"github.com/popilot-dev/popilot/internal/chatclient"
	"github.com/popilot-dev/popilot/internal/config"
	"github.com/popilot-dev/popilot/internal/loop"
	"github.com/popilot-dev/popilot/internal/policy"
	"github.com/popilot-dev/popilot/internal/session"
	"github.com/popilot-dev/popilot/internal/tool"
)

var (
	flagModel         string
	flagDir           string
	flagNoColor       bool
	flagHardLimit     int
	flagMaxTextLength int
	flagMaxToolOutput int
	flagKeepRecent    int
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "popilot",
		Short: "An interactive, tool-using coding assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&flagModel, "model", "claude", "model alias: claude, gpt, or gemini")
	cmd.Flags().StringVar(&flagDir, "dir", ".", "workspace root directory")
	cmd.Flags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	cmd.Flags().IntVar(&flagHardLimit, "hard-limit", config.DefaultHardLimit, "request transformer hard character budget")
	cmd.Flags().IntVar(&flagMaxTextLength, "max-text-length", config.DefaultMaxTextLength, "request transformer per-message text cap")
	cmd.Flags().IntVar(&flagMaxToolOutput, "max-tool-output", config.DefaultMaxToolOutput, "request transformer per-tool-result cap")
	cmd.Flags().IntVar(&flagKeepRecent, "keep-recent", config.DefaultKeepRecent, "request transformer recent-message retention")
	return cmd
}

func run(ctx context.Context) error {
	workDir, err := resolveDir(flagDir)
	if err != nil {
		return fmt.Errorf("invalid --dir: %w", err)
	}

	family, err := config.ResolveModel(flagModel)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)

	if err := applog.Init(workDir, "info"); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not open log file:", err)
	}
	log := applog.For("main")
	log.Debug().
		Int("hard_limit", cfg.HardLimit).
		Int("max_text_length", cfg.MaxTextLength).
		Int("max_tool_output", cfg.MaxToolOutput).
		Int("keep_recent", cfg.KeepRecent).
		Msg("transformer tuning loaded")

	sessions, err := session.Init(config.SessionsDir(workDir))
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	sess := sessions.Create(string(family))

	checkpoints, err := session.NewCheckpointStore(config.PopilotDir(workDir), sess.ID)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}

	policyDir := config.PolicyDir(workDir)
	rules, settings, err := policy.LoadDir(policyDir)
	if err != nil {
		return fmt.Errorf("load policy rules: %w", err)
	}
	decisions, err := policy.NewDecisionStore(policyDir)
	if err != nil {
		return fmt.Errorf("open policy decision store: %w", err)
	}
	policyEng, err := policy.New(rules, decisions)
	if err != nil {
		return fmt.Errorf("build policy engine: %w", err)
	}
	if settings.Mode != "" {
		if m, ok := parsePolicyMode(settings.Mode); ok {
			policyEng.SetMode(m)
		}
	}

	apiKey := config.APIKey(family)
	if apiKey == "" {
		fmt.Fprintf(os.Stderr, "warning: no API key found for %s; set the matching environment variable\n", family)
	}

	client := chatclient.New(baseURLForFamily(family))
	client.SetAuthMode(chatclient.AuthAPIKey)
	client.SetAPIKey(apiKey)
	adapter := &loop.ChatAdapter{
		Client: client,
		URL:    chatclient.ShortFormURL(client.BaseURL(), 1, chatclient.Family(family)),
	}

	toolCtx := &tool.ToolContext{WorkDir: workDir, Mode: policyEng.GetMode()}
	ctrl := loop.New(sessions, checkpoints, policyEng, decisions, toolCtx, adapter)

	log.Info().Str("session_id", sess.ID).Str("model", string(family)).Msg("session started")

	style := promptStyle(flagNoColor)
	fmt.Println(style.Render(fmt.Sprintf("popilot (%s) — workspace %s", family, workDir)))

	return repl(ctx, ctrl, sess.ID, style)
}

func repl(ctx context.Context, ctrl *loop.Controller, sessionID string, style lipgloss.Style) error {
	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !reader.Scan() {
			return reader.Err()
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}

		if err := ctrl.RunTurn(ctx, sessionID, line); err != nil {
			fmt.Fprintln(os.Stderr, style.Render("error: "+err.Error()))
			continue
		}

		for ctrl.Snapshot().State == loop.StateConfirming {
			if err := confirmPending(ctx, ctrl, sessionID); err != nil {
				fmt.Fprintln(os.Stderr, style.Render("error: "+err.Error()))
				break
			}
		}

		printLatestAssistantMessage(ctrl, sessionID)
	}
}

func confirmPending(ctx context.Context, ctrl *loop.Controller, sessionID string) error {
	snap := ctrl.Snapshot()
	if snap.Pending == nil {
		return nil
	}
	call := snap.Pending.ToolCalls[snap.Pending.CursorIndex]
	fmt.Printf("run %q? [y/N] ", call.ToolName)

	reader := bufio.NewScanner(os.Stdin)
	reader.Scan()
	answer := strings.ToLower(strings.TrimSpace(reader.Text()))
	approved := answer == "y" || answer == "yes"

	return ctrl.Resume(ctx, sessionID, loop.ConfirmResponse{Approved: approved})
}

func printLatestAssistantMessage(ctrl *loop.Controller, sessionID string) {
	sess, ok := ctrl.SessionStore().Get(sessionID)
	if !ok || len(sess.Messages) == 0 {
		return
	}
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == "assistant" {
			fmt.Println(sess.Messages[i].Content)
			return
		}
	}
}

func applyFlagOverrides(cfg *config.Config) {
	cfg.Model = flagModel
	cfg.Dir = flagDir
	cfg.NoColor = flagNoColor
	cfg.HardLimit = flagHardLimit
	cfg.MaxTextLength = flagMaxTextLength
	cfg.MaxToolOutput = flagMaxToolOutput
	cfg.KeepRecent = flagKeepRecent
}

func resolveDir(dir string) (string, error) {
	abs, err := absPath(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

func promptStyle(noColor bool) lipgloss.Style {
	if noColor {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
}

func parsePolicyMode(s string) (policy.Mode, bool) {
	switch policy.Mode(s) {
	case policy.ModeDefault, policy.ModeAutoEdit, policy.ModeYolo:
		return policy.Mode(s), true
	}
	return "", false
}

func baseURLForFamily(family config.Family) string {
	if v := os.Getenv("POPILOT_CHAT_BASE_URL"); v != "" {
		return v
	}
	return "https://api.popilot.internal"
}
