package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/arcana/internal/config"
	"github.com/mihaimyh/arcana/pkg/entitlement"
)

type entitlementView struct {
	*entitlement.Entitlement
	ReadingsLimit *int `json:"readingsLimit"`
	Remaining     *int `json:"remaining"`
}

func newEntitlementCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlement",
		Short: "Inspect and change user entitlements",
	}

	withService := func(cmd *cobra.Command, fn func(svc *entitlement.Service) error) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, cmd.ErrOrStderr())
		be, err := openBackend(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer be.Close()
		svc, err := newEntitlementService(cfg, be.attrs, logger, nil)
		if err != nil {
			return err
		}
		return fn(svc)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <user>",
		Short: "Print a user's entitlement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(svc *entitlement.Service) error {
				ent, err := svc.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printEntitlement(cmd.OutOrStdout(), svc.Plans(), ent)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-tier <user> <tier>",
		Short: "Set a user's tier without payment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := entitlement.ParseTier(args[1])
			if err != nil {
				return err
			}
			return withService(cmd, func(svc *entitlement.Service) error {
				ent, err := svc.UpdateTier(cmd.Context(), args[0], tier)
				if err != nil {
					return fmt.Errorf("failed to update tier: %w", err)
				}
				return printEntitlement(cmd.OutOrStdout(), svc.Plans(), ent)
			})
		},
	})

	return cmd
}

func printEntitlement(out io.Writer, plans entitlement.Plans, ent *entitlement.Entitlement) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(entitlementView{
		Entitlement:   ent,
		ReadingsLimit: entitlement.NullableLimit(ent.ReadingsLimit(plans)),
		Remaining:     entitlement.NullableLimit(ent.Remaining(plans)),
	})
}
