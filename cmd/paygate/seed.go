package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/repository"
)

// seedCmd prepares a predictable local dataset: a referrer, a referred user with
// one subscription per service type, and the referral linking them.
func seedCmd(flags *rootFlags) *cobra.Command {
	var referrerID, userID, code string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed users, subscriptions and a referral for manual testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			return seed(ctx, a, referrerID, userID, code)
		},
	}
	cmd.Flags().StringVar(&referrerID, "referrer", "referrer-demo", "referrer user id")
	cmd.Flags().StringVar(&userID, "user", "user-demo", "referred user id")
	cmd.Flags().StringVar(&code, "code", "DEMO2024", "referral code")
	return cmd
}

func seed(ctx context.Context, a *app, referrerID, userID, code string) error {
	if err := a.users.Save(ctx, repository.NoTX, &model.Referrer{UserID: referrerID}); err != nil {
		return fmt.Errorf("seed referrer: %w", err)
	}
	if err := a.users.Save(ctx, repository.NoTX, &model.Referrer{UserID: userID, ReferredBy: &referrerID}); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}

	for _, svc := range model.ServiceTypes() {
		if s, err := a.subs.FindActiveByUserAndService(ctx, repository.NoTX, userID, svc); err == nil {
			fmt.Printf("subscription exists: %s (%s, balance=%d)\n", s.ID, svc, s.TokenBalance)
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("lookup subscription %s: %w", svc, err)
		}
		s, err := model.NewSubscription(uuid.NewString(), userID, svc)
		if err != nil {
			return err
		}
		if err := a.subs.Save(ctx, repository.NoTX, s); err != nil {
			return fmt.Errorf("seed subscription %s: %w", svc, err)
		}
		fmt.Printf("seeded subscription: %s (%s, token value=%d)\n", s.ID, svc, model.TokenValue(svc))
	}

	if r, err := a.referrals.FindByPair(ctx, repository.NoTX, referrerID, userID); err == nil {
		fmt.Printf("referral exists: %s\n", r.ID)
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("lookup referral: %w", err)
	}
	ref := &model.Referral{ID: uuid.NewString(), ReferrerID: referrerID, ReferredUserID: userID, ReferralCode: code, CreatedAt: time.Now()}
	if err := a.referrals.Save(ctx, repository.NoTX, ref); err != nil {
		return fmt.Errorf("seed referral: %w", err)
	}
	fmt.Printf("seeded referral: %s (%s -> %s)\n", ref.ID, referrerID, userID)
	return nil
}
