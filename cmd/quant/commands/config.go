package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/diversifier/internal/strategyconfig"
	"github.com/wonny/diversifier/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Strategy YAML 검증/조회",
	Long: `Strategy YAML을 검증하고 해시/적용값을 출력합니다.

Subcommands:
  validate [path]  - 검증 + 경고 출력
  show [path]      - 기본값이 채워진 YAML 출력
  hash [path]      - config hash (실행 기록과 대조용)

Example:
  go run ./cmd/quant config validate config/strategy.yaml
  go run ./cmd/quant config show`,
}

var (
	configValidateCmd = &cobra.Command{
		Use:   "validate [path]",
		Short: "검증 + 경고 출력",
		Args:  cobra.MaximumNArgs(1),
		RunE:  validateStrategy,
	}

	configShowCmd = &cobra.Command{
		Use:   "show [path]",
		Short: "적용값 YAML 출력",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showStrategy,
	}

	configHashCmd = &cobra.Command{
		Use:   "hash [path]",
		Short: "config hash 출력",
		Args:  cobra.MaximumNArgs(1),
		RunE:  hashStrategy,
	}
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configHashCmd)
}

// loadStrategyArg loads args[0], --strategy or STRATEGY_PATH in that order
func loadStrategyArg(args []string) (*strategyconfig.Config, string, error) {
	path := strategyPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, "", fmt.Errorf("load config: %w", err)
		}
		path = cfg.StrategyPath
	}

	strategy, _, err := strategyconfig.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("%s: %w", path, err)
	}
	return strategy, path, nil
}

func validateStrategy(cmd *cobra.Command, args []string) error {
	strategy, path, err := loadStrategyArg(args)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return err
	}

	fmt.Printf("✅ %s is valid (strategy_id=%s)\n", path, strategy.Meta.StrategyID)
	for _, w := range strategyconfig.Warn(strategy) {
		fmt.Printf("⚠️  [%s] %s\n", w.Code, w.Message)
	}
	return nil
}

func showStrategy(cmd *cobra.Command, args []string) error {
	strategy, _, err := loadStrategyArg(args)
	if err != nil {
		return err
	}
	data, err := strategyconfig.Marshal(strategy)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func hashStrategy(cmd *cobra.Command, args []string) error {
	strategy, _, err := loadStrategyArg(args)
	if err != nil {
		return err
	}
	hash, err := strategyconfig.Hash(strategy)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
