package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/todmy/embedscope/internal/config"
	"github.com/todmy/embedscope/internal/dataset"
	"github.com/todmy/embedscope/internal/explorer"
	"github.com/todmy/embedscope/internal/optimizer"
	"github.com/todmy/embedscope/pkg/models"
)

var (
	projectInput      string
	projectOutput     string
	projectEngine     string
	projectPerplexity float64
	projectSeed       int64
	projectMaxIter    int
	projectNormalize  bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project a dataset to 2D and print the coordinates",
	Long: `Reads a JSON object of {id: {text, embedding, hue_var}} entries, runs the
chosen engine to convergence and writes [{id, x, y}] as JSON.`,
	Args: cobra.NoArgs,
	RunE: runProject,
}

func init() {
	projectCmd.Flags().StringVarP(&projectInput, "input", "i", "", "input dataset (JSON), - for stdin")
	projectCmd.Flags().StringVarP(&projectOutput, "output", "o", "", "output file (default stdout)")
	projectCmd.Flags().StringVarP(&projectEngine, "engine", "e", "", "engine: tsne or pca")
	projectCmd.Flags().Float64Var(&projectPerplexity, "perplexity", 0, "t-SNE perplexity")
	projectCmd.Flags().Int64Var(&projectSeed, "seed", 0, "random seed")
	projectCmd.Flags().IntVar(&projectMaxIter, "max-iter", 0, "maximum iterations")
	projectCmd.Flags().BoolVar(&projectNormalize, "normalize", false, "scale coordinates into [-1, 1]")
	_ = projectCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(projectCmd)
}

func runProject(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("engine") {
		cfg.Projection.Engine = projectEngine
	}
	if cmd.Flags().Changed("perplexity") {
		cfg.Projection.Perplexity = projectPerplexity
	}
	if cmd.Flags().Changed("seed") {
		cfg.Projection.Seed = projectSeed
	}
	if cmd.Flags().Changed("max-iter") {
		cfg.Projection.MaxIter = projectMaxIter
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sessionConfig, err := cfg.Projection.Explorer()
	if err != nil {
		return err
	}

	data, err := readDataset(cmd, projectInput)
	if err != nil {
		return err
	}

	session, err := explorer.New(data, sessionConfig)
	if err != nil {
		return err
	}
	res, err := session.Run()
	if err != nil {
		return fmt.Errorf("projection failed: %w", err)
	}
	log.Info().
		Str("engine", sessionConfig.Engine.String()).
		Int("points", data.Len()).
		Int("iterations", res.Iterations).
		Msg("projection complete")

	solution := session.Solution()
	if projectNormalize {
		solution = optimizer.Normalize(solution)
	}

	out := make([]models.ProjectedPoint, data.Len())
	for i, p := range data.Points() {
		out[i] = models.ProjectedPoint{ID: p.ID, X: solution[i][0]}
		if len(solution[i]) > 1 {
			out[i].Y = solution[i][1]
		}
	}

	return writeJSON(cmd, projectOutput, out)
}

func readDataset(cmd *cobra.Command, path string) (*dataset.Set, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := dataset.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return data, nil
}

func writeJSON(cmd *cobra.Command, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	if path == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
