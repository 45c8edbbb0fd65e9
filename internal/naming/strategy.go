package naming

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Strategy controls how an artifact path becomes a repository name.
type Strategy int

const (
	// StrategyDefault lower-cases the path and replaces every "." and "/"
	// with "_": org/apache/ant/ant/1.10.11/ant-1.10.11.jar becomes
	// org_apache_ant_ant_1_10_11_ant-1_10_11_jar.
	StrategyDefault Strategy = iota
	// StrategySHA256 uses the hex sha256 of the path. Use it as a last
	// resort: the name says nothing about what the image holds.
	StrategySHA256
	// StrategyNone keeps the path, lower-cased. Only registries that accept
	// multi-segment repository names can store these.
	StrategyNone
)

// ParseStrategy parses a strategy name, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return StrategyDefault, nil
	case "sha256":
		return StrategySHA256, nil
	case "none":
		return StrategyNone, nil
	default:
		return 0, fmt.Errorf("unknown naming strategy %q", s)
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategyDefault:
		return "default"
	case StrategySHA256:
		return "sha256"
	case StrategyNone:
		return "none"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// RepositoryName applies s to an artifact path.
func RepositoryName(artifactPath string, s Strategy) (string, error) {
	switch s {
	case StrategyDefault:
		return defaultReplacer.Replace(strings.ToLower(artifactPath)), nil
	case StrategySHA256:
		sum := sha256.Sum256([]byte(artifactPath))
		return hex.EncodeToString(sum[:]), nil
	case StrategyNone:
		return strings.ToLower(artifactPath), nil
	default:
		return "", fmt.Errorf("unknown naming strategy %v", s)
	}
}

var defaultReplacer = strings.NewReplacer(".", "_", "/", "_")
