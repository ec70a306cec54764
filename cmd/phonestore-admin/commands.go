package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"phonestore/internal/domain"
	"phonestore/internal/repos"
	"phonestore/internal/services"
)

func runMigrate(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	// Schema migrations already ran when the database was opened.
	rep, err := repos.NormalizeLegacy(ctx, e.db)
	if err != nil {
		return err
	}
	fmt.Printf("schema up to date; emails lowered: %d, specs rewritten: %d\n", rep.EmailsLowered, rep.SpecsRewritten)
	return nil
}

func runCreateAdmin(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("create-admin", pflag.ContinueOnError)
	name := fs.String("name", "Admin", "display name")
	email := fs.String("email", "", "account email (required)")
	password := fs.String("password", "", "password; prompted for when omitted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	pw := *password
	if pw == "" {
		var err error
		if pw, err = promptPassword(); err != nil {
			return err
		}
	}
	created, err := e.auth.EnsureAdmin(ctx, *name, *email, pw)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("created admin %s\n", strings.ToLower(*email))
	} else {
		fmt.Printf("promoted %s to admin and reset its password\n", strings.ToLower(*email))
	}
	return nil
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal to prompt on; pass --password")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if len(first) == 0 {
		return "", errors.New("empty password")
	}
	return string(first), nil
}

func runUsers(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("users", pflag.ContinueOnError)
	role := fs.String("role", "", "only list accounts with this role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	users, err := e.auth.ListAccounts(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tLAST LOGIN")
	for _, u := range users {
		if *role != "" && string(u.Role) != *role {
			continue
		}
		last := "-"
		if u.LastLoginAt != nil {
			last = time.Unix(*u.LastLoginAt, 0).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Role, last)
	}
	return tw.Flush()
}

// seedFile is the YAML (or JSON) layout accepted by the seed command.
type seedFile struct {
	Users []struct {
		Name     string `yaml:"name"`
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
		Role     string `yaml:"role"`
	} `yaml:"users"`
	Products []struct {
		ID          int64   `yaml:"id"`
		Title       string  `yaml:"title"`
		Price       float64 `yaml:"price"`
		Category    string  `yaml:"category"`
		Description string  `yaml:"description"`
		Specs       any     `yaml:"specs"`
	} `yaml:"products"`
}

func runSeed(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: seed FILE")
	}
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	var sf seedFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return fmt.Errorf("parse %s: %w", fs.Arg(0), err)
	}

	var users, products int
	for _, u := range sf.Users {
		if domain.Role(u.Role) == domain.RoleAdmin {
			if _, err := e.auth.EnsureAdmin(ctx, u.Name, u.Email, u.Password); err != nil {
				return fmt.Errorf("user %s: %w", u.Email, err)
			}
			users++
			continue
		}
		_, err := e.auth.Register(ctx, u.Name, u.Email, u.Password)
		switch {
		case errors.Is(err, domain.ErrConflict):
			fmt.Printf("skip existing user %s\n", u.Email)
			continue
		case err != nil:
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
		users++
	}
	for _, p := range sf.Products {
		id := strconv.FormatInt(p.ID, 10)
		price := strconv.FormatFloat(p.Price, 'f', -1, 64)
		in := services.ProductInput{
			ID:          &id,
			Title:       &p.Title,
			Price:       &price,
			Category:    &p.Category,
			Description: &p.Description,
			Specs:       p.Specs,
		}
		if _, err := e.catalog.Create(ctx, in, nil); err != nil {
			return fmt.Errorf("product %d: %w", p.ID, err)
		}
		products++
	}
	fmt.Printf("seeded %d users and %d products\n", users, products)
	return nil
}

func runImport(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("import", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: import FILE.xlsx")
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()
	res, err := e.catalog.Import(ctx, f)
	if err != nil {
		return err
	}
	for _, re := range res.Errors {
		fmt.Printf("row %d: %s\n", re.Row, re.Message)
	}
	fmt.Printf("imported %d products, %d rows rejected\n", res.Imported, len(res.Errors))
	return nil
}
