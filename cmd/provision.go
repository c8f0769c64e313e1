package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"reel-scout/auth"
	"reel-scout/classifier"
	"reel-scout/metrics"
	"reel-scout/provision"
)

// provisioner builds a Provisioner on the environment. A missing credentials
// key leaves sealing unavailable; only add-account needs it.
func (e *env) provisioner(m *metrics.Metrics) (*provision.Provisioner, error) {
	var sealer *auth.Sealer
	if e.cfg.Credentials.Key != "" {
		s, err := auth.NewSealer(e.cfg.Credentials.Key)
		if err != nil {
			return nil, err
		}
		sealer = s
	}
	return provision.New(e.classifier(m), e.repo, sealer, e.log), nil
}

func (e *env) classifier(m *metrics.Metrics) *classifier.Classifier {
	o := e.cfg.Oracle
	oracle := classifier.NewOpenAIOracle(o.BaseURL, o.APIKey, o.Model)
	return classifier.New(oracle, classifier.Options{
		RequestsPerSecond: o.RequestsPerSecond,
		Timeout:           o.Timeout,
	}, e.log, m)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func newCreateSessionCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "create-session",
		Short: "Create a session from a discovery prompt and bind a free account to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			p, err := e.provisioner(nil)
			if err != nil {
				return err
			}
			s, err := p.CreateSession(cmd.Context(), prompt)
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "what to look for, in plain words")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func newAddAccountCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "add-account",
		Short: "Add a feed account to the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			p, err := e.provisioner(nil)
			if err != nil {
				return err
			}
			acc, err := p.AddAccount(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "account %s added\n", acc.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "feed username")
	cmd.Flags().StringVar(&password, "password", "", "feed password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newAddTargetAppCmd() *cobra.Command {
	var sessionID, name string
	var keywords []string
	cmd := &cobra.Command{
		Use:   "add-target-app",
		Short: "Register an app whose keywords seed a target_app crawl",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if _, err := e.repo.GetSession(cmd.Context(), sessionID); err != nil {
				return err
			}
			p, err := e.provisioner(nil)
			if err != nil {
				return err
			}
			app, err := p.AddTargetedApp(cmd.Context(), sessionID, name, keywords)
			if err != nil {
				return err
			}
			return printJSON(cmd, app)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&name, "name", "", "app name")
	cmd.Flags().StringSliceVar(&keywords, "keyword", nil, "search keyword (repeatable or comma separated)")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
