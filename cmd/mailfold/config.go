package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const exampleConfig = `# mailfold configuration
sender:
  email: you@example.com
  name: Jane Doe
  # reply_to: newsletter@example.com

smtp:
  host: smtp.gmail.com
  port: 465
  # username defaults to sender.email
  password: ${MAILFOLD_PASSWORD}
  # starttls: true   # use for port 587 relays

contacts:
  path: contacts.csv

templates:
  root: templates
  default_lang: en

attachments:
  root: attachments
  # lang_dir_fallback: true

ledger:
  path: logs/sent.csv

pacing:
  delay: 8s

# timezone: Europe/Berlin

# dkim:
#   enabled: true
#   domain: example.com
#   selector: mail
#   key_file: dkim.key

# metrics:
#   enabled: true
#   listen_addr: ":9090"

logging:
  level: info
  format: text

# variables:           # available as $placeholders in templates
#   event: Spring Meetup
`

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config file for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("%s: OK (sender %s, relay %s:%d)\n", cfgFile, cfg.Sender.Email, cfg.SMTP.Host, cfg.SMTP.Port)
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(cfgFile); err == nil {
				return fmt.Errorf("%s already exists", cfgFile)
			}
			if err := os.WriteFile(cfgFile, []byte(exampleConfig), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", cfgFile, err)
			}
			fmt.Printf("wrote %s\n", cfgFile)
			return nil
		},
	}

	cmd.AddCommand(validateCmd, initCmd)
	return cmd
}
