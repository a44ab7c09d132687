/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cosray/backend/config"
	"github.com/cosray/backend/internal/db"
	"github.com/cosray/backend/internal/services"
	"github.com/cosray/backend/internal/store"
	"github.com/cosray/backend/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const superuserPasswordEnv = "COSRAY_SUPERUSER_PASSWORD"

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var superuser struct {
	username string
	email    string
	name     string
	noInput  bool
}

var createSuperuserCmd = &cobra.Command{
	Use:   "create-superuser",
	Short: "Create a staff superuser with a verified email",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := loadConfig()

		password, err := superuserPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), superuser.noInput)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		user, err := createSuperuser(cmd.Context(), cfg.Database, services.CreateSuperuserInput{
			Username: superuser.username,
			Email:    superuser.email,
			Name:     superuser.name,
			Password: password,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create superuser: %v\n", err)
			os.Exit(1)
		}
		log.Info().Str("username", user.Username).Int("user_id", user.ID).Msg("superuser created")
		fmt.Fprintln(cmd.OutOrStdout(), "Superuser created successfully.")
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(createSuperuserCmd)

	createSuperuserCmd.Flags().StringVar(&superuser.username, "username", "", "Login name (required)")
	createSuperuserCmd.Flags().StringVar(&superuser.email, "email", "", "Email address (required)")
	createSuperuserCmd.Flags().StringVar(&superuser.name, "name", "", "Display name")
	createSuperuserCmd.Flags().BoolVar(&superuser.noInput, "no-input", false, "Read the password from "+superuserPasswordEnv)
	_ = createSuperuserCmd.MarkFlagRequired("username")
	_ = createSuperuserCmd.MarkFlagRequired("email")
}

func createSuperuser(ctx context.Context, cfg config.DatabaseConfig, in services.CreateSuperuserInput) (types.User, error) {
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return types.User{}, err
	}
	defer conn.Close()

	return services.NewUserService(store.NewUserRepository(conn)).CreateSuperuser(ctx, in)
}

// superuserPassword reads the password from the environment with --no-input,
// otherwise prompts for it twice on the terminal.
func superuserPassword(in io.Reader, out io.Writer, noInput bool) (string, error) {
	if noInput {
		password := os.Getenv(superuserPasswordEnv)
		if password == "" {
			return "", fmt.Errorf("%s must be set with --no-input", superuserPasswordEnv)
		}
		return password, nil
	}

	p := newPrompter(in, out)
	first, err := p.password("Password: ")
	if err != nil {
		return "", err
	}
	second, err := p.password("Password (again): ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	if first == "" {
		return "", errors.New("password cannot be blank")
	}
	return first, nil
}

// prompter reads without echo from a terminal and line by line from
// anything else.
type prompter struct {
	terminal int
	lines    *bufio.Reader
	out      io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{terminal: -1, out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.terminal = int(f.Fd())
	} else {
		p.lines = bufio.NewReader(in)
	}
	return p
}

func (p *prompter) password(label string) (string, error) {
	fmt.Fprint(p.out, label)
	defer fmt.Fprintln(p.out)

	if p.terminal >= 0 {
		raw, err := term.ReadPassword(p.terminal)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := p.lines.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
