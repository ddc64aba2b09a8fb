// nft-conformance runs the NFT signing scenario matrix against a physical
// device over HID. Navigation steps are printed for the operator to perform
// on the device; screen comparison needs a simulated backend and is skipped
// here.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bob-collective/app-ethereum/client"
	"github.com/bob-collective/app-ethereum/navigation"
	"github.com/bob-collective/app-ethereum/nft"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		modelName  string
		filter     string
		pathName   string
		rejectOnly bool
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:          "nft-conformance",
		Short:        "Run the NFT signing conformance scenarios against a connected device",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := log.LevelInfo
			if verbose {
				level = log.LevelTrace
			}
			log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, false)))

			model, err := parseModel(modelName)
			if err != nil {
				return err
			}
			path, err := accounts.ParseDerivationPath(pathName)
			if err != nil {
				return errors.Wrapf(err, "parse derivation path %q", pathName)
			}
			return run(model, path, filter, rejectOnly)
		},
	}
	cmd.Flags().StringVar(&modelName, "model", "compact", "device family under test (compact|paged)")
	cmd.Flags().StringVar(&filter, "filter", "", "only run scenarios whose name contains this substring")
	cmd.Flags().StringVar(&pathName, "path", "m/44'/60'/0'/0/0", "derivation path to sign with")
	cmd.Flags().BoolVar(&rejectOnly, "reject", false, "only run the reject scenarios")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log APDU traffic")
	return cmd
}

func parseModel(name string) (navigation.DeviceModel, error) {
	switch name {
	case "compact":
		return navigation.Compact, nil
	case "paged":
		return navigation.Paged, nil
	default:
		return 0, errors.Errorf("unknown device model %q", name)
	}
}

// selectScenarios narrows the matrix to what the operator asked for: an
// optional substring match on the scenario name and, with rejectOnly, just
// the reject paths.
func selectScenarios(scenarios []nft.Scenario, filter string, rejectOnly bool) []nft.Scenario {
	var out []nft.Scenario
	for _, sc := range scenarios {
		if rejectOnly && !sc.Reject {
			continue
		}
		if filter != "" && !strings.Contains(sc.Name(), filter) {
			continue
		}
		out = append(out, sc)
	}
	return out
}

func run(model navigation.DeviceModel, path accounts.DerivationPath, filter string, rejectOnly bool) error {
	app, err := client.Connect()
	if err != nil {
		return errors.Wrap(err, "connect to device")
	}
	defer app.Close()

	version, _, err := app.GetConfiguration()
	if err != nil {
		return errors.Wrap(err, "query app configuration")
	}
	log.Info("connected", "app", fmt.Sprintf("%d.%d.%d", version[0], version[1], version[2]), "model", model)

	scenarios, err := nft.Scenarios()
	if err != nil {
		return err
	}
	runner := nft.NewRunner(app, &manualNavigator{}, model)
	runner.UsePath(path)

	var failed int
	for _, sc := range selectScenarios(scenarios, filter, rejectOnly) {
		name := sc.Name()
		if err := runner.RunScenario(sc); err != nil {
			failed++
			log.Error("scenario failed", "name", name, "err", err)
			continue
		}
		log.Info("scenario passed", "name", name)
	}
	if failed > 0 {
		return errors.Errorf("%d scenario(s) failed", failed)
	}
	return nil
}

// manualNavigator tells the operator which inputs the device should need.
// The human performing them on the real screen is the comparison.
type manualNavigator struct{}

func (*manualNavigator) NavigateAndCompare(name string, steps []navigation.Step) error {
	fmt.Printf("%s: perform on device:\n", name)
	for i, step := range steps {
		fmt.Printf("  %2d. %s\n", i+1, step)
	}
	return nil
}
