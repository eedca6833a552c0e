package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ametov/dosewatch/internal/config"
	"github.com/ametov/dosewatch/internal/rules"
	"github.com/ametov/dosewatch/internal/storage"
)

var (
	ruleWeekdays []int
	ruleTime     string
	ruleLabel    string
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage weekly reminder rules",
}

var ruleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a weekly rule and populate its pending reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, repo, err := openRuleService()
		if err != nil {
			return err
		}
		defer repo.Close()

		rule, err := svc.CreateRecurrence(context.Background(), ruleWeekdays, ruleTime, ruleLabel, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("created rule %s\n", rule.ID)
		return nil
	},
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List weekly rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, repo, err := openRuleService()
		if err != nil {
			return err
		}
		defer repo.Close()

		all, err := repo.ListRecurrences(context.Background())
		if err != nil {
			return err
		}
		for _, r := range all {
			fmt.Printf("%s\t%v %s\t%s\n", r.ID, r.Weekdays, r.TimeOfDay, r.Label)
		}
		return nil
	},
}

var ruleDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a weekly rule and every reminder it spawned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, repo, err := openRuleService()
		if err != nil {
			return err
		}
		defer repo.Close()
		return svc.DeleteRecurrence(context.Background(), args[0])
	},
}

func openRuleService() (*rules.Service, *storage.SQLiteRepository, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	repo, err := openRepo(cfg)
	if err != nil {
		return nil, nil, err
	}
	return &rules.Service{Repo: repo, Log: buildLogger(cfg)}, repo, nil
}

func init() {
	ruleAddCmd.Flags().IntSliceVar(&ruleWeekdays, "weekday", nil, "weekday 0-6, 0=Sunday (repeatable)")
	ruleAddCmd.Flags().StringVar(&ruleTime, "time", "08:00", "time of day HH:MM")
	ruleAddCmd.Flags().StringVar(&ruleLabel, "label", "", "rule label")
	ruleCmd.AddCommand(ruleAddCmd, ruleListCmd, ruleDeleteCmd)
}
