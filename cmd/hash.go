package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/jjudge-oj/accounts/internal/hashing"
	"github.com/jjudge-oj/accounts/internal/validation"
	"github.com/spf13/cobra"
)

var hashSkipPolicy bool

// hashCmd prints a PHC string for a password read from stdin, for seeding
// accounts directly into the database.
var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash a password read from stdin",
	Long: `Reads one line from stdin and prints its Argon2id PHC string. Usage:

	echo 'Abcdef1$' | accounts hash
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return errors.New("empty password")
		}
		if !hashSkipPolicy && !validation.ValidPassword(password) {
			return errors.New("password does not meet the password policy (use --skip-policy to override)")
		}

		hasher, err := hashing.NewArgon2(hashing.DefaultConfig())
		if err != nil {
			return err
		}
		encoded, err := hasher.Hash(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), encoded)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
	hashCmd.Flags().BoolVar(&hashSkipPolicy, "skip-policy", false, "hash passwords that fail the password policy")
}
