package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the local store guests fetch into",
		Long: `Add paths to, fetch into and list the local store used by the
fetch_url, fetch_git, fetch_github and add_to_store host functions.

The same allowlists apply as for guests: use --allow-host for fetches and
--allow-path for local paths.`,
	}

	add := &cobra.Command{
		Use:   "add <path>",
		Short: "Copy a file or directory into the store",
		Args:  cobra.ExactArgs(1),
		RunE:  runStoreAdd,
	}

	fetch := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download a URL into the store",
		Args:  cobra.ExactArgs(1),
		RunE:  runStoreFetch,
	}
	fetch.Flags().String("hash", "", "Expected SRI hash (sha256-...)")

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List store objects",
		Args:  cobra.NoArgs,
		RunE:  runStoreList,
	}

	cmd.AddCommand(add, fetch, ls)
	return cmd
}

func runStoreAdd(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.store.AddToStore(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), e.store.PrintStorePath(p))
	return nil
}

func runStoreFetch(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	hash, _ := cmd.Flags().GetString("hash")
	p, err := e.store.FetchURL(context.Background(), args[0], hash)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), e.store.PrintStorePath(p))
	return nil
}

func runStoreList(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	paths, err := e.store.List()
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), e.store.PrintStorePath(p))
	}
	return nil
}
