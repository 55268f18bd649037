package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/subcommands"

	"example.com/fincap/backend/internal/ai"
	"example.com/fincap/backend/internal/ledger"
)

type extractCmd struct {
	file     string
	provider string
	model    string
	asOf     string
	timeout  time.Duration
}

func (*extractCmd) Name() string     { return "extract" }
func (*extractCmd) Synopsis() string { return "extract transaction candidates from a statement or invoice" }
func (*extractCmd) Usage() string {
	return `ledgerctl extract -f <statement.pdf> [-provider gemini|groq] [-model <name>]

  Sends the document to the AI provider and prints the sanitized
  candidates as JSON. Nothing is posted. The API key is read from
  AI_API_KEY (or GEMINI_API_KEY for gemini).
`
}

func (p *extractCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.file, "f", "", "Document to analyze (PDF, image, CSV or text).")
	f.StringVar(&p.provider, "provider", "gemini", "AI provider: gemini or groq.")
	f.StringVar(&p.model, "model", "", "Model name (provider default when empty).")
	f.StringVar(&p.asOf, "as-of", "2025-11-18", "Date used for candidates without a readable date.")
	f.DurationVar(&p.timeout, "timeout", 60*time.Second, "Request timeout.")
}

func (p *extractCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.file == "" {
		fmt.Fprintln(os.Stderr, "missing -f")
		return subcommands.ExitUsageError
	}
	if _, err := ledger.ParseDate(p.asOf); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing -as-of: %v\n", err)
		return subcommands.ExitUsageError
	}

	data, err := os.ReadFile(p.file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	client, err := p.client()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	candidates, _, _, err := ai.NewService(client).AnalyzeDocument(ctx, ai.AnalyzeDocumentInput{
		MIMEType: fileMIME(p.file, data),
		Data:     data,
		AsOf:     p.asOf,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	return printJSON(candidates)
}

func (p *extractCmd) client() (ai.Client, error) {
	key := os.Getenv("AI_API_KEY")
	switch p.provider {
	case "gemini":
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		model := p.model
		if model == "" {
			model = "gemini-2.5-flash"
		}
		return ai.NewGeminiClient(key, os.Getenv("AI_BASE_URL"), model, p.timeout, 0), nil
	case "groq":
		model := p.model
		if model == "" {
			model = "llama-3.3-70b-versatile"
		}
		baseURL := os.Getenv("AI_BASE_URL")
		if baseURL == "" {
			baseURL = "https://api.groq.com/openai/v1"
		}
		return ai.NewGroqClient(key, baseURL, model, p.timeout, 0), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", p.provider)
	}
}

func fileMIME(name string, data []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}
