package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/traceon/traceond/pkg/actions"
	"github.com/traceon/traceond/pkg/auth"
	"github.com/traceon/traceond/pkg/config"
	"github.com/traceon/traceond/pkg/log"
	"github.com/traceon/traceond/pkg/store"
	"github.com/traceon/traceond/pkg/types"
)

const seedPassword = "demo1234"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo fixtures into the store",
	Long: `Load demo fixtures: one account per role, three tracker devices and a
parcel already moving through its lifecycle. Run against an empty data
directory; existing records with the same ids are overwritten.

All demo accounts share the password "` + seedPassword + `".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON, Output: os.Stderr})

		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		st, err := store.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		provider := auth.NewProvider(st, cfg.JWTSecret)
		svc := actions.NewService(st, cfg.OfflineAfter)

		accounts := []struct {
			email string
			role  types.Role
			name  string
		}{
			{"warehouse@demo.traceon.io", types.RoleWarehouse, "Demo Warehouse"},
			{"transporter@demo.traceon.io", types.RoleTransporter, "Demo Transporter"},
			{"owner@demo.traceon.io", types.RoleOwner, "Demo Owner"},
		}

		ids := make(map[types.Role]string)
		for _, a := range accounts {
			id, err := provider.SignUp(a.email, seedPassword, a.role, a.name)
			if err != nil {
				return fmt.Errorf("seed account %s: %w", a.email, err)
			}
			// demo accounts skip the approval queue
			if err := st.Update(store.ProfilePath(id.ID), map[string]any{"verified": true}); err != nil {
				return err
			}
			ids[a.role] = id.ID
			fmt.Printf("  account %-14s %s\n", a.role, a.email)
		}

		now := time.Now().UnixMilli()
		for i := 1; i <= 3; i++ {
			deviceID := fmt.Sprintf("TRACKER-%03d", i)
			if err := st.Put(store.DeviceInfoPath(deviceID), types.DeviceInfo{
				DeviceName:   fmt.Sprintf("Demo Tracker %d", i),
				Status:       types.DeviceAvailable,
				LastSeen:     strconv.FormatInt(now, 10),
				RegisteredAt: strconv.FormatInt(now, 10),
			}); err != nil {
				return fmt.Errorf("seed device %s: %w", deviceID, err)
			}
			fmt.Printf("  device  %s\n", deviceID)
		}

		warehouse := actions.Actor{
			ID: ids[types.RoleWarehouse], Email: "warehouse@demo.traceon.io", Role: types.RoleWarehouse,
		}
		transporter := actions.Actor{
			ID: ids[types.RoleTransporter], Email: "transporter@demo.traceon.io",
			Name: "Demo Transporter", Role: types.RoleTransporter,
		}

		parcelID, err := svc.CreateParcel(warehouse, actions.CreateParcelForm{
			DeviceID:           "TRACKER-001",
			ProductDescription: "Demo shipment",
			Category:           "electronics",
			Weight:             2.5,
			PickupLocation:     "Central Warehouse",
			Destination:        "52 Demo Street",
			OwnerName:          "Demo Owner",
			OwnerEmail:         "owner@demo.traceon.io",
		})
		if err != nil {
			return fmt.Errorf("seed parcel: %w", err)
		}
		if err := svc.ExpressInterest(transporter, parcelID, "Demo route match", "2h"); err != nil {
			return fmt.Errorf("seed interest: %w", err)
		}
		if err := svc.AssignTransporter(warehouse, parcelID, transporter.ID); err != nil {
			return fmt.Errorf("seed assignment: %w", err)
		}
		fmt.Printf("  parcel  %s (assigned to demo transporter)\n", parcelID)

		fmt.Println("Demo fixtures loaded")
		return nil
	},
}
