package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inferload/inferload/internal/output"
	"github.com/inferload/inferload/internal/performance/config"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Check a configuration file and print its timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(args[0])
		},
	}
}

func (a *app) validateConfig(path string) error {
	noColor := a.v.GetBool("no-color")

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	config.ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(a.stdout, "%s %s is invalid\n", output.ErrorIcon(noColor), path)
		var verrs *config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs.Errors {
				fmt.Fprintf(a.stdout, "  - %s\n", e.Error())
			}
		}
		return fmt.Errorf("invalid configuration: %s", path)
	}

	timeline := cfg.ExecutorConfig(nil).Timeline()
	fmt.Fprintf(a.stdout, "%s %s is valid\n\n", output.SuccessIcon(noColor), path)
	fmt.Fprintf(a.stdout, "Name:      %s\n", cfg.Name)
	fmt.Fprintf(a.stdout, "Target:    %s (%s)\n", cfg.Target.URL, cfg.Target.Protocol)
	if cfg.Body.Model != "" {
		fmt.Fprintf(a.stdout, "Model:     %s\n", cfg.Body.Model)
	}
	fmt.Fprintf(a.stdout, "Executor:  %s\n", cfg.Load.Executor)
	fmt.Fprintf(a.stdout, "Stages:    %s\n", timeline.String())
	fmt.Fprintf(a.stdout, "Duration:  %s (+%s graceful ramp-down)\n",
		output.FormatDuration(timeline.TotalDuration()),
		output.FormatDuration(timeline.GracefulRampDown))
	fmt.Fprintf(a.stdout, "Peak VUs:  %d\n", timeline.MaxTarget())

	if cfg.Thresholds != nil {
		ths, err := cfg.Thresholds.Thresholds()
		if err != nil {
			return err
		}
		if len(ths) > 0 {
			exprs := make([]string, 0, len(ths))
			for _, t := range ths {
				exprs = append(exprs, t.Metric+" "+t.Expression)
			}
			fmt.Fprintf(a.stdout, "Thresholds: %s\n", strings.Join(exprs, "; "))
		}
	}
	return nil
}
