package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ametov/dosewatch/internal/model"
	"github.com/ametov/dosewatch/internal/sim"
)

var (
	thresholdValue float64
	thresholdMode  string
	thresholdLabel string
	curvePath      string
)

var thresholdCmd = &cobra.Command{
	Use:   "threshold",
	Short: "Manage concentration threshold rules",
}

var thresholdAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a threshold rule and populate its reminder, if any",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, repo, err := openRuleService()
		if err != nil {
			return err
		}
		defer repo.Close()

		curve, err := loadCurve(curvePath)
		if err != nil {
			return err
		}
		rule, err := svc.CreateThreshold(context.Background(), thresholdValue, model.NotifyMode(thresholdMode), thresholdLabel, curve, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("created threshold rule %s\n", rule.ID)
		return nil
	},
}

var thresholdListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threshold rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, repo, err := openRuleService()
		if err != nil {
			return err
		}
		defer repo.Close()

		all, err := repo.ListThresholds(context.Background())
		if err != nil {
			return err
		}
		for _, r := range all {
			fmt.Printf("%s\t%.1f %s\t%s\n", r.ID, r.Threshold, r.Mode, r.Label)
		}
		return nil
	},
}

var thresholdDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a threshold rule and every reminder it spawned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, repo, err := openRuleService()
		if err != nil {
			return err
		}
		defer repo.Close()
		return svc.DeleteThreshold(context.Background(), args[0])
	},
}

// curveFile is the on-disk shape of an exported simulation curve.
type curveFile struct {
	StartedAt time.Time `json:"started_at"`
	Samples   []struct {
		TimeHours     float64 `json:"time_hours"`
		Concentration float64 `json:"concentration"`
	} `json:"samples"`
}

// loadCurve reads an exported curve. No path means no dose history, which the
// rule service treats as "no crossing".
func loadCurve(path string) (sim.Curve, error) {
	if path == "" {
		return sim.Curve{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return sim.Curve{}, fmt.Errorf("read curve: %w", err)
	}
	var cf curveFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return sim.Curve{}, fmt.Errorf("parse curve: %w", err)
	}
	curve := sim.Curve{StartedAt: cf.StartedAt}
	for _, s := range cf.Samples {
		curve.Samples = append(curve.Samples, sim.Sample{TimeHours: s.TimeHours, Concentration: s.Concentration})
	}
	return curve, nil
}

func init() {
	thresholdAddCmd.Flags().Float64Var(&thresholdValue, "value", 0, "threshold concentration in pg/mL")
	thresholdAddCmd.Flags().StringVar(&thresholdMode, "mode", string(model.NotifyAtCross), "at_cross or immediate_if_below")
	thresholdAddCmd.Flags().StringVar(&thresholdLabel, "label", "", "rule label")
	thresholdAddCmd.Flags().StringVar(&curvePath, "curve", "", "path to an exported curve JSON file")
	thresholdCmd.AddCommand(thresholdAddCmd, thresholdListCmd, thresholdDeleteCmd)
}
