// Package seed fills an empty store with demo data for local
// development: a few users across two teams, a prize catalog including
// a negotiated-price prize, and the reward categories shown on the
// "how to earn points" screen.
package seed

import (
	"context"

	"github.com/synetech/synepoints/points"
)

// Load is idempotent: it skips entirely when any user already exists.
func Load(ctx context.Context, store points.Store) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	teams := []points.Team{
		{ID: "mobile", Name: "Mobile"},
		{ID: "backend", Name: "Backend"},
	}
	for _, t := range teams {
		if err := store.PutTeam(ctx, t); err != nil {
			return err
		}
	}

	demoUsers := []points.User{
		{Email: "franta.pepa1@synetech.cz", FullName: "Franta Pepa I", Role: points.RoleAdmin, Teams: []points.TeamID{"backend"}},
		{Email: "franta.pepa2@synetech.cz", FullName: "Franta Pepa II", Role: points.RolePM, Teams: []points.TeamID{"mobile"}},
		{Email: "franta.pepa3@synetech.cz", FullName: "Franta Pepa III", Role: points.RoleUser, Teams: []points.TeamID{"mobile", "backend"}},
	}
	seedPoints := []int64{3, 4, 5}
	for i := range demoUsers {
		if err := store.PutUser(ctx, &demoUsers[i]); err != nil {
			return err
		}
		if err := store.CreditPoints(ctx, demoUsers[i].Email, seedPoints[i]); err != nil {
			return err
		}
		if err := store.AppendPointRecord(ctx, points.PointRecord{
			ChangedBy: "seed",
			User:      demoUsers[i].Email,
			Reason:    "initial demo balance",
			Points:    seedPoints[i],
		}); err != nil {
			return err
		}
	}

	prizes := []points.Prize{
		{ID: 1, Description: "Company t-shirt", Price: "50", Requestable: true},
		{ID: 2, Description: "Lunch with the CEO", Price: "120", Requestable: true},
		{ID: 3, Description: "Extra vacation day", Price: "300", Requestable: true},
		{ID: 4, Description: "Conference of your choice", Price: "dle domluvy", Requestable: false},
	}
	for _, p := range prizes {
		if err := store.PutPrize(ctx, p); err != nil {
			return err
		}
	}

	categories := []points.RewardCategory{
		{
			Name: "Engineering",
			Items: []points.RewardItem{
				{Description: "Tech talk at a meetup", PointValue: 30},
				{Description: "Blog post on the company blog", PointValue: 20},
				{Description: "Interview shadowing", PointValue: 10},
			},
		},
		{
			Name: "Community",
			Items: []points.RewardItem{
				{Description: "Referral that leads to a hire", PointValue: 100},
				{Description: "Organizing a company event", PointValue: 40},
			},
		},
	}
	for _, c := range categories {
		if err := store.PutRewardCategory(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
