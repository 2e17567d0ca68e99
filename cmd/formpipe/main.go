// Command formpipe drives a conversational form-filling session from the
// terminal: it loads a form definition, starts a session, and exchanges
// turns with the dialogue decision engine over stdin/stdout. It can also
// prefill a form from a text file in one shot, or probe the intent proposer.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/formpipe/formpipe/internal/flow"
	"github.com/formpipe/formpipe/internal/genai"
	"github.com/formpipe/formpipe/internal/models"
	"github.com/formpipe/formpipe/internal/store"
	"github.com/formpipe/formpipe/internal/util"
)

// Config holds environment configuration.
type Config struct {
	OpenAIKey string
	Model     string
	Debug     bool
}

// Flags holds command line flag values.
type Flags struct {
	formFile      *string
	prefillFile   *string
	openaiKey     *string
	model         *string
	checkProposer *bool
}

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)
	flags := parseCommandLineFlags(config)

	client, err := genai.NewClient(*flags.openaiKey, *flags.model)
	if err != nil {
		slog.Error("Failed to create proposer client", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if *flags.checkProposer {
		if err := client.Ping(ctx); err != nil {
			slog.Error("Proposer check failed", "error", err)
			os.Exit(1)
		}
		fmt.Println("proposer OK")
		return
	}

	form, err := loadFormDefinition(*flags.formFile)
	if err != nil {
		slog.Error("Failed to load form definition", "file", *flags.formFile, "error", err)
		os.Exit(1)
	}

	if *flags.prefillFile != "" {
		if err := runPrefill(ctx, client, form, *flags.prefillFile); err != nil {
			slog.Error("Prefill failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runSession(ctx, client, form); err != nil {
		slog.Error("Session failed", "error", err)
		os.Exit(1)
	}
}

// initializeLogger sets up structured logging; debug level via FORMPIPE_DEBUG.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and a
// .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
	return Config{
		OpenAIKey: os.Getenv("OPENAI_API_KEY"),
		Model:     util.GetenvDefault("OPENAI_MODEL", ""),
		Debug:     util.ParseBoolEnv("FORMPIPE_DEBUG", false),
	}
}

// parseCommandLineFlags parses flags, with environment values as defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		formFile:      flag.String("form", "form.json", "path to the form definition JSON file"),
		prefillFile:   flag.String("prefill", "", "fill the form in one shot from this text file instead of chatting"),
		openaiKey:     flag.String("openai-key", config.OpenAIKey, "OpenAI API key (env OPENAI_API_KEY)"),
		model:         flag.String("model", config.Model, "proposer model name (env OPENAI_MODEL)"),
		checkProposer: flag.Bool("check-proposer", false, "probe the intent proposer and exit"),
	}
	flag.Parse()
	return flags
}

func loadFormDefinition(path string) ([]models.FieldDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var form []models.FieldDefinition
	if err := json.Unmarshal(data, &form); err != nil {
		return nil, fmt.Errorf("failed to parse form definition: %w", err)
	}
	if err := models.ValidateDefinition(form); err != nil {
		return nil, err
	}
	return form, nil
}

// runPrefill fills the whole form from a text file and prints the snapshot.
func runPrefill(ctx context.Context, client *genai.Client, form []models.FieldDefinition, path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	filled, err := flow.NewPrefiller(client).FillFromText(ctx, form, string(text))
	if err != nil {
		return err
	}
	return printJSON(filled)
}

// runSession runs the interactive console loop over one session.
func runSession(ctx context.Context, client *genai.Client, form []models.FieldDefinition) error {
	engine := flow.NewEngine(store.NewInMemoryStore(), client)

	start, err := engine.StartSession(ctx, form)
	if err != nil {
		return err
	}
	fmt.Printf("agent: %s\n", start.Message)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		resp, err := engine.Step(ctx, start.SessionID, line, "")
		if err != nil {
			return err
		}
		fmt.Printf("agent: %s\n", resp.UI.Text)
		if len(resp.UI.Options) > 0 {
			fmt.Printf("       options: %v\n", resp.UI.Options)
		}
		if resp.Type == models.ResponseComplete {
			return printJSON(resp.Form)
		}
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
