package session

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Exit code contract for external login helpers: 0 success, 1 rejection,
// 42 rate-limited.
const rateLimitedExitCode = 42

// ExecLoginFunc adapts an external browser-automation helper into a
// LoginFunc. The helper receives the storage-state path and, when
// proxied, a --proxy flag with the selected proxy URL.
func ExecLoginFunc(command string, proxyPicker func() string) LoginFunc {
	return func(ctx context.Context, storagePath string, proxied bool) (bool, error) {
		parts := strings.Fields(command)
		if len(parts) == 0 {
			return false, fmt.Errorf("session: login helper command not configured")
		}

		args := append(parts[1:], "--storage", storagePath)
		if proxied && proxyPicker != nil {
			if proxy := proxyPicker(); proxy != "" {
				args = append(args, "--proxy", proxy)
			}
		}

		cmd := exec.CommandContext(ctx, parts[0], args...)
		output, err := cmd.CombinedOutput()
		if err == nil {
			return true, nil
		}

		if exitErr, ok := err.(*exec.ExitError); ok {
			switch exitErr.ExitCode() {
			case rateLimitedExitCode:
				return false, &RateLimitError{Detail: strings.TrimSpace(string(output))}
			case 1:
				return false, nil
			}
		}
		return false, fmt.Errorf("session: login helper failed: %w", err)
	}
}
