package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neuralpositive/trackgate/internal/resolver"
)

func newResolveCommand(configFlag *string) *cobra.Command {
	var kindFlag string
	var bucketFlag string

	cmd := &cobra.Command{
		Use:   "resolve <candidate>",
		Short: "Resolve a candidate string to its best storage key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, *configFlag, args[0], kindFlag, bucketFlag)
		},
	}
	cmd.Flags().StringVar(&kindFlag, "type", "audio", "Resolution type: audio or artwork")
	cmd.Flags().StringVar(&bucketFlag, "bucket", "", "Bucket to resolve against (default: configured bucket)")
	return cmd
}

func runResolve(cmd *cobra.Command, configPath, candidate, kindFlag, bucket string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	kind := resolver.KindAudio
	switch kindFlag {
	case "audio":
	case "artwork":
		kind = resolver.KindArtwork
		candidate = resolver.RewriteArtworkCandidate(candidate)
	default:
		return fmt.Errorf("unknown type %q", kindFlag)
	}

	if bucket == "" {
		bucket = a.cfg.Storage.Bucket
	}

	res, err := a.resolver.Resolve(cmd.Context(), bucket, candidate, kind)
	if err != nil {
		return fmt.Errorf("resolving: %w", err)
	}
	if !res.Matched() {
		return fmt.Errorf("no key in bucket %q matched %q", bucket, candidate)
	}

	cmd.Println(renderTable(
		[]string{"Candidate", "Key", "Score"},
		[][]string{{candidate, res.Key, fmt.Sprintf("%.4f", res.Score)}},
		[]columnAlignment{alignLeft, alignLeft, alignRight},
	))
	return nil
}
