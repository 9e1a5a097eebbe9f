package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mimic-sh/mimic/internal/config"
)

type candidateResult struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

type generationResult struct {
	Candidates    []candidateResult `json:"candidates"`
	Degraded      bool              `json:"degraded"`
	Provider      string            `json:"provider"`
	Model         string            `json:"model"`
	InteractionID string            `json:"interaction_id"`
}

func printCandidates(res generationResult) {
	for _, c := range res.Candidates {
		fmt.Printf("\n%s\n", colorize(colorBold, c.Label))
		fmt.Printf("  %s\n", c.Text)
	}
	if res.Degraded {
		printWarning("Response could not be parsed; showing fallback suggestions")
	}
	fmt.Printf("\n%s\n", colorize(colorCyan, fmt.Sprintf("interaction %s (%s/%s)", res.InteractionID, res.Provider, res.Model)))
}

// --- reply ---

var replyCmd = &cobra.Command{
	Use:     "reply <post text>",
	Aliases: []string{"generate"},
	Short:   "Generate reply candidates to a post in the author's voice",
	Long: `Generate reply candidates to a post in the author's voice.

Examples:
  mimic reply "Hot take: monorepos are underrated"
  mimic reply --author alice "Anyone else tired of framework churn?"
  mimic reply --instruction "politely disagree" "We should rewrite it in Rust"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := strings.Join(args, " ")
		author, _ := cmd.Flags().GetString("author")
		instruction, _ := cmd.Flags().GetString("instruction")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"target_text": target}
		if author != "" {
			req["author_id"] = author
		}

		if instruction != "" {
			req["instruction"] = instruction
			resp, err := client.post(cmd.Context(), "/v1/replies/custom", req)
			if err != nil {
				return err
			}
			var result struct {
				Reply         string `json:"reply"`
				InteractionID string `json:"interaction_id"`
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(result)
			}
			fmt.Println(result.Reply)
			return nil
		}

		resp, err := client.post(cmd.Context(), "/v1/replies", req)
		if err != nil {
			return err
		}
		var result generationResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(result)
		}
		printCandidates(result)
		return nil
	},
}

func init() {
	replyCmd.Flags().String("author", "", "author whose style to imitate (default: configured author)")
	replyCmd.Flags().String("instruction", "", "generate a single reply following this instruction instead of the fixed slots")
	replyCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- compose ---

var composeCmd = &cobra.Command{
	Use:   "compose <idea>",
	Short: "Write post variants of an idea in the author's voice",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idea := strings.Join(args, " ")
		author, _ := cmd.Flags().GetString("author")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"idea": idea}
		if author != "" {
			req["author_id"] = author
		}

		resp, err := client.post(cmd.Context(), "/v1/posts", req)
		if err != nil {
			return err
		}
		var result generationResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(result)
		}
		printCandidates(result)
		return nil
	},
}

func init() {
	composeCmd.Flags().String("author", "", "author whose style to imitate (default: configured author)")
	composeCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze <author>",
	Short: "Analyze an author's corpus and store a new style profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Analyzing corpus for %s...", args[0])
		resp, err := client.post(cmd.Context(), "/v1/profiles/analyze", map[string]any{"author_id": args[0]})
		if err != nil {
			return err
		}

		var rec struct {
			ID         string `json:"id"`
			SampleSize int    `json:"sample_size"`
			Profile    any    `json:"profile"`
		}
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		printSuccess("Saved profile %s (analyzed %d posts)", rec.ID, rec.SampleSize)

		if show, _ := cmd.Flags().GetBool("show"); show {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec.Profile)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().Bool("show", false, "print the stored profile JSON")
}

// --- authors ---

var authorsCmd = &cobra.Command{
	Use:   "authors",
	Short: "Manage corpus authors",
}

var authorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List authors and their corpus sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/authors")
		if err != nil {
			return err
		}

		var authors []struct {
			AuthorID   string `json:"author_id"`
			EntryCount int    `json:"entry_count"`
		}
		if err := decodeJSON(resp, &authors); err != nil {
			return err
		}

		if len(authors) == 0 {
			fmt.Println("No authors found. Import a corpus with `mimic import`.")
			return nil
		}
		for _, a := range authors {
			fmt.Printf("%s  %d entries\n", colorize(colorBold, a.AuthorID), a.EntryCount)
		}
		return nil
	},
}

var authorsDeleteCmd = &cobra.Command{
	Use:   "delete <author>",
	Short: "Delete an author's corpus entries and style profiles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete all data for %s. Use --confirm to proceed.", args[0])
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/authors/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted author %s", args[0])
		return nil
	},
}

func init() {
	authorsDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")
	authorsCmd.AddCommand(authorsListCmd)
	authorsCmd.AddCommand(authorsDeleteCmd)
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import writing samples into an author's corpus",
	Long: `Import writing samples into an author's corpus.

Samples are cleaned, embedded, and stored in the background.

Examples:
  mimic import --author alice --text "shipping beats planning"
  mimic import --author alice --file ./archive.json
  mimic import --author alice --file ./blog.html`,
	RunE: func(cmd *cobra.Command, args []string) error {
		author, _ := cmd.Flags().GetString("author")
		texts, _ := cmd.Flags().GetStringArray("text")
		file, _ := cmd.Flags().GetString("file")

		if author == "" {
			return fmt.Errorf("--author is required")
		}
		if len(texts) == 0 && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}

		req := map[string]any{"author_id": author}
		if len(texts) > 0 {
			req["texts"] = texts
		}
		if file != "" {
			// The worker reads the file, so hand it an absolute path.
			abs, err := filepath.Abs(file)
			if err != nil {
				return err
			}
			if _, err := os.Stat(abs); err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			req["file_path"] = abs
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/corpus", req)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued import job %s", result["job_id"])
		return nil
	},
}

func init() {
	importCmd.Flags().String("author", "", "author the samples belong to")
	importCmd.Flags().StringArray("text", nil, "writing sample to import (repeatable)")
	importCmd.Flags().String("file", "", "file to import (.txt, .json, .html, .pdf)")
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Inspect generation history",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent generations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/interactions?limit=%d", limit))
		if err != nil {
			return err
		}

		var interactions []struct {
			ID         string `json:"id"`
			CreatedAt  string `json:"created_at"`
			Kind       string `json:"kind"`
			TargetText string `json:"target_text"`
		}
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			target := ix.TargetText
			if len(target) > 80 {
				target = target[:80] + "..."
			}
			fmt.Printf("%s  %s  %-8s  %s\n",
				colorize(colorCyan, ix.ID[:8]),
				ix.CreatedAt,
				ix.Kind,
				target,
			)
		}
		return nil
	},
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single generation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/interactions/"+args[0])
		if err != nil {
			return err
		}

		var interaction any
		if err := decodeJSON(resp, &interaction); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(interaction)
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsShowCmd)
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
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
