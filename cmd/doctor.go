package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"relaygram/pkg/backend"
	"relaygram/pkg/config"

	"github.com/charmbracelet/lipgloss"
	"github.com/mymmrac/telego"
	"github.com/spf13/cobra"
)

var doctorVerbose bool

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check relay configuration and connectivity",
	Long: `Check that relaygram can start by verifying:
  • Configuration loads and validates
  • The Telegram bot token authenticates (getMe)
  • The backend webhook endpoint answers

This command is useful before first deployment and whenever the relay
stays silent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		fmt.Println(sectionStyle.Render("🔍 relaygram doctor"))
		fmt.Println()

		failures := 0

		// Step 1: configuration
		fmt.Println(infoStyle.Render("Step 1: Loading configuration..."))
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Println(errorStyle.Render("❌ Failed to load configuration:"), err)
			return fmt.Errorf("doctor: configuration unreadable")
		}
		if err := cfg.Validate(); err != nil {
			fmt.Println(errorStyle.Render("❌ Configuration invalid:"), err)
			failures++
		} else {
			fmt.Println(successStyle.Render("✅ Configuration valid"))
		}
		if doctorVerbose {
			fmt.Printf("   Bot token: %s\n", maskToken(cfg.Telegram.Token))
			fmt.Printf("   Backend URL: %s\n", cfg.Backend.URL)
			fmt.Printf("   Session cap: %d entries, %dh idle TTL\n", cfg.Session.MaxEntries, cfg.Session.IdleTTLHours)
		}
		fmt.Println()

		// Step 2: bot identity
		fmt.Println(infoStyle.Render("Step 2: Checking Telegram bot identity..."))
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			fmt.Println(warningStyle.Render("⚠️  Skipped: no bot token configured"))
		} else if identity, err := botIdentity(ctx, cfg.Telegram.Token); err != nil {
			fmt.Println(errorStyle.Render("❌ Telegram rejected the token:"), err)
			failures++
		} else {
			fmt.Println(successStyle.Render("✅ Bot authenticated"))
			if doctorVerbose {
				fmt.Printf("   Identity: %s\n", identity)
			}
		}
		fmt.Println()

		// Step 3: backend reachability
		fmt.Println(infoStyle.Render("Step 3: Probing backend webhook..."))
		client := backend.New(cfg.Backend, slog.Default())
		if err := client.Probe(ctx); err != nil {
			fmt.Println(errorStyle.Render("❌ Backend unreachable:"), err)
			fmt.Println("   The relay still starts without it; every exchange degrades")
			fmt.Println("   to a no-op until the backend answers.")
			failures++
		} else {
			fmt.Println(successStyle.Render("✅ Backend endpoint answers"))
			if doctorVerbose {
				fmt.Printf("   Webhook: %s\n", client.WebhookURL())
			}
		}
		fmt.Println()

		// Summary
		fmt.Println(sectionStyle.Render("📊 Summary"))
		fmt.Println()
		if failures == 0 {
			fmt.Println(successStyle.Render("✅ All checks passed"))
			return nil
		}

		fmt.Println(errorStyle.Render(fmt.Sprintf("❌ %d check(s) failed", failures)))
		return fmt.Errorf("doctor: %d check(s) failed", failures)
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.SilenceUsage = true
	doctorCmd.Flags().BoolVarP(&doctorVerbose, "verbose", "v", false, "Show detailed diagnostic information")
}

// botIdentity authenticates the token and returns a printable bot label.
func botIdentity(ctx context.Context, token string) (string, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return "", err
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return "", err
	}

	if me.Username != "" {
		return "@" + me.Username, nil
	}

	return me.FirstName, nil
}

// maskToken keeps just enough of a token to recognize it without exposing
// it.
func maskToken(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "(not set)"
	}
	if len(trimmed) <= 8 {
		return "****"
	}

	return trimmed[:4] + "..." + trimmed[len(trimmed)-4:]
}
