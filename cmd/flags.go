package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// Flag lookups panic on unknown names: the flags are declared next to the
// command, so a failure is a programming bug.

func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// stringSetting returns the flag when set explicitly, else the env var, else the flag default.
func stringSetting(cmd *cobra.Command, name, envKey string) string {
	if !cmd.Flags().Changed(name) {
		if v := os.Getenv(envKey); v != "" {
			return v
		}
	}
	return mustGetString(cmd, name)
}

// intSetting is stringSetting for integers. Unparsable env values are ignored.
func intSetting(cmd *cobra.Command, name, envKey string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	if !cmd.Flags().Changed(name) {
		if n, err := strconv.Atoi(os.Getenv(envKey)); err == nil && n > 0 {
			return n
		}
	}
	return val
}

// listSetting is stringSetting for comma-separated lists.
func listSetting(cmd *cobra.Command, name, envKey string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	if cmd.Flags().Changed(name) {
		return val
	}
	var out []string
	for item := range strings.SplitSeq(os.Getenv(envKey), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return val
	}
	return out
}
