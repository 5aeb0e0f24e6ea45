package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shotsense-cli/internal/auth"
	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/outcome"
	"github.com/sells-group/shotsense-cli/internal/render"
	"github.com/sells-group/shotsense-cli/pkg/shotsense"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the analysis service",
	Long:  "Signs in with email and password and stores the session cookie locally. The password is read from stdin when --password is not given.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		email, _ := cmd.Flags().GetString("email")
		password, err := passwordFlag(cmd)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		if err := env.Client.SignIn(ctx, email, password); err != nil {
			return credentialError(cmd.ErrOrStderr(), "Sign in failed", err)
		}
		return printCurrentUser(ctx, cmd.OutOrStdout(), env, "Signed in as")
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		password, err := passwordFlag(cmd)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		if err := env.Client.SignUp(ctx, name, email, password); err != nil {
			return credentialError(cmd.ErrOrStderr(), "Sign up failed", err)
		}
		if err := env.Client.SignIn(ctx, email, password); err != nil {
			return credentialError(cmd.ErrOrStderr(), "Account created but sign in failed", err)
		}
		return printCurrentUser(ctx, cmd.OutOrStdout(), env, "Welcome,")
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		env.expired.Store(true)
		if err := env.Store.ClearCookies(ctx, cfg.Service.BaseURL); err != nil {
			return eris.Wrap(err, "logout")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		return printCurrentUser(ctx, cmd.OutOrStdout(), env, "Signed in as")
	},
}

func printCurrentUser(ctx context.Context, w io.Writer, env *cliEnv, prefix string) error {
	ctx, cancel := auth.WithAction(ctx)
	defer cancel(nil)

	out := auth.Guard(ctx, env.Gate, func(ctx context.Context) (*shotsense.User, error) {
		return env.Client.CurrentUser(ctx)
	})
	switch {
	case out.Kind == outcome.KindAuthExpired:
		return errSessionExpired
	case !out.IsOK():
		fmt.Fprintln(w, out.Message)
		return errReported
	}

	user := model.User{Name: out.Value.Name, Email: out.Value.Email}
	env.Session.SetUser(&user)
	if f := format(); f != render.FormatText {
		return render.Encode(w, f, user)
	}
	if user.Email != "" {
		fmt.Fprintf(w, "%s %s <%s>\n", prefix, user.Name, user.Email)
	} else {
		fmt.Fprintf(w, "%s %s\n", prefix, user.Name)
	}
	return nil
}

// credentialError prints the service's message for a rejected sign-in or
// sign-up.
func credentialError(w io.Writer, what string, err error) error {
	if apiErr, ok := shotsense.AsAPIError(err); ok && apiErr.Message != "" {
		fmt.Fprintf(w, "%s: %s\n", what, apiErr.Message)
		return errReported
	}
	return eris.Wrap(err, strings.ToLower(what))
}

func passwordFlag(cmd *cobra.Command) (string, error) {
	pw, _ := cmd.Flags().GetString("password")
	if pw != "" {
		return pw, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", eris.Wrap(err, "read password")
	}
	pw = strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", eris.New("password is required (--password or stdin)")
	}
	return pw, nil
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().String("email", "", "account email")
		c.Flags().String("password", "", "account password (read from stdin when empty)")
		_ = c.MarkFlagRequired("email")
	}
	signupCmd.Flags().String("name", "", "display name")
	_ = signupCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd)
}
