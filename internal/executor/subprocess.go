package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// SubprocessBackend runs connectors as external executables described by a
// Manifest, speaking the protocol package's line-delimited format over
// stdout. It writes config/catalog/state to temp files in a working
// directory, enforces a per-execution wall-clock timeout, captures stderr
// as diagnostic LOG lines, and guarantees no orphaned process on abort.
type SubprocessBackend struct {
	manifests  map[string]Manifest
	workingDir string
	timeout    time.Duration
	logger     zerolog.Logger

	mu     sync.Mutex
	usage  map[string]ResourceUsage
}

// NewSubprocessBackend constructs a backend over the given connector
// manifests. workingDir is the root under which each invocation gets its
// own temp subdirectory; timeout is the default wall-clock budget (spec
// default: 1 hour) applied when the caller's context carries no deadline.
func NewSubprocessBackend(manifests map[string]Manifest, workingDir string, timeout time.Duration, logger zerolog.Logger) *SubprocessBackend {
	return &SubprocessBackend{
		manifests:  manifests,
		workingDir: workingDir,
		timeout:    timeout,
		logger:     logger,
		usage:      make(map[string]ResourceUsage),
	}
}

// LastResourceUsage returns the peak RSS/CPU observed for the most recent
// invocation of connectorID, if any was sampled.
func (b *SubprocessBackend) LastResourceUsage(connectorID string) ResourceUsage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage[connectorID]
}

func (b *SubprocessBackend) recordUsage(connectorID string, usage ResourceUsage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[connectorID] = usage
}

func (b *SubprocessBackend) manifestFor(connectorID string) (Manifest, error) {
	m, ok := b.manifests[connectorID]
	if !ok {
		return Manifest{}, fmt.Errorf("executor: no subprocess manifest registered for %q", connectorID)
	}
	return m, nil
}

func (b *SubprocessBackend) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

func writeJSONFile(dir, name string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("executor: marshal %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("executor: write %s: %w", name, err)
	}
	return path, nil
}

// run executes command with the given file arguments, buffering all
// output, and returns the parsed messages or an error. Used by
// Spec/Check/Discover, which need the whole (small) output at once.
func (b *SubprocessBackend) run(ctx context.Context, connectorID string, args []string) ([]protocol.Message, error) {
	manifest, err := b.manifestFor(connectorID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := b.deadline(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, manifest.Command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stdout pipe: %w", err)
	}
	var stderrBuf []byte
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("executor: start %s: %w", connectorID, err)
	}

	messages, errc := protocol.ParseStream(runCtx, stdout, b.logger)
	var collected []protocol.Message
	for m := range messages {
		collected = append(collected, m)
	}

	stderrBuf, _ = readAll(stderr)
	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		return collected, fmt.Errorf("executor: connector %s timed out", connectorID)
	}
	if scanErr := <-errc; scanErr != nil {
		return collected, scanErr
	}
	if waitErr != nil {
		msg := string(stderrBuf)
		if len(msg) > 1000 {
			msg = msg[:1000]
		}
		return collected, fmt.Errorf("executor: connector %s exited with error: %w: %s", connectorID, waitErr, msg)
	}
	return collected, nil
}

func readAll(r interface{ Read([]byte) (int, error) }) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return buf, nil
		}
	}
}

func (b *SubprocessBackend) Spec(ctx context.Context, connectorID string) (*protocol.Spec, error) {
	messages, err := b.run(ctx, connectorID, []string{"spec"})
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		if m.Type == protocol.MessageTypeSpec && m.Spec != nil {
			return m.Spec, nil
		}
	}
	return nil, fmt.Errorf("executor: no SPEC message from connector %s", connectorID)
}

func (b *SubprocessBackend) Check(ctx context.Context, connectorID string, config map[string]any) (*protocol.ConnectionStatusMessage, error) {
	manifest, err := b.manifestFor(connectorID)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(b.workingDir, connectorID+"-check-*")
	if err != nil {
		return nil, fmt.Errorf("executor: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	_ = manifest

	configPath, err := writeJSONFile(dir, "config.json", config)
	if err != nil {
		return nil, err
	}

	messages, err := b.run(ctx, connectorID, []string{"check", "--config", configPath})
	if err != nil {
		return &protocol.ConnectionStatusMessage{Status: protocol.ConnectionStatusFailed, Message: err.Error()}, nil
	}
	for _, m := range messages {
		if m.Type == protocol.MessageTypeConnectionStatus && m.ConnectionStatus != nil {
			return m.ConnectionStatus, nil
		}
	}
	if errs := protocol.Errors(messages); len(errs) > 0 {
		return &protocol.ConnectionStatusMessage{Status: protocol.ConnectionStatusFailed, Message: errs[0].Message}, nil
	}
	return nil, fmt.Errorf("executor: no CONNECTION_STATUS message from connector %s", connectorID)
}

func (b *SubprocessBackend) Discover(ctx context.Context, connectorID string, config map[string]any) (*protocol.Catalog, error) {
	dir, err := os.MkdirTemp(b.workingDir, connectorID+"-discover-*")
	if err != nil {
		return nil, fmt.Errorf("executor: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	configPath, err := writeJSONFile(dir, "config.json", config)
	if err != nil {
		return nil, err
	}

	messages, err := b.run(ctx, connectorID, []string{"discover", "--config", configPath})
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		if m.Type == protocol.MessageTypeCatalog && m.Catalog != nil {
			return m.Catalog, nil
		}
	}
	return nil, fmt.Errorf("executor: no CATALOG message from connector %s", connectorID)
}

// Read streams messages from the connector's read command, merging stdout
// (parsed protocol messages) and stderr (wrapped as LOG messages) onto one
// channel in the order they were produced. The process is killed and temp
// files removed on every exit path, including timeout and caller
// cancellation.
func (b *SubprocessBackend) Read(ctx context.Context, connectorID string, config map[string]any, catalog protocol.ConfiguredCatalog, state map[string]any) (<-chan protocol.Message, <-chan error) {
	out := make(chan protocol.Message)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		manifest, err := b.manifestFor(connectorID)
		if err != nil {
			errc <- err
			return
		}

		runCtx, cancel := b.deadline(ctx)
		defer cancel()

		dir, err := os.MkdirTemp(b.workingDir, connectorID+"-read-*")
		if err != nil {
			errc <- fmt.Errorf("executor: temp dir: %w", err)
			return
		}
		defer os.RemoveAll(dir)

		configPath, err := writeJSONFile(dir, "config.json", config)
		if err != nil {
			errc <- err
			return
		}
		catalogPath, err := writeJSONFile(dir, "catalog.json", catalog)
		if err != nil {
			errc <- err
			return
		}

		args := []string{"read", "--config", configPath, "--catalog", catalogPath}
		if state != nil {
			statePath, err := writeJSONFile(dir, "state.json", state)
			if err != nil {
				errc <- err
				return
			}
			args = append(args, "--state", statePath)
		}

		cmd := exec.CommandContext(runCtx, manifest.Command, args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errc <- fmt.Errorf("executor: stdout pipe: %w", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			errc <- fmt.Errorf("executor: stderr pipe: %w", err)
			return
		}

		if err := cmd.Start(); err != nil {
			errc <- fmt.Errorf("executor: start %s: %w", connectorID, err)
			return
		}

		resourceCtx, resourceCancel := context.WithCancel(context.Background())
		var usage ResourceUsage
		var usageWG sync.WaitGroup
		usageWG.Add(1)
		go func() {
			defer usageWG.Done()
			usage = sampleResourceUsage(resourceCtx, int32(cmd.Process.Pid), time.Second)
		}()

		stdoutMessages, stdoutErrc := protocol.ParseStream(runCtx, stdout, b.logger)

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			for m := range stdoutMessages {
				select {
				case out <- m:
				case <-runCtx.Done():
					return
				}
			}
		}()

		go func() {
			defer wg.Done()
			scanner := bufio.NewScanner(stderr)
			for scanner.Scan() {
				line := scanner.Text()
				if line == "" {
					continue
				}
				b.logger.Warn().Str("connector", connectorID).Msg(line)
				logMsg := protocol.Message{
					Type: protocol.MessageTypeLog,
					Log:  &protocol.LogMessage{Level: protocol.LogLevelWarn, Message: line},
				}
				select {
				case out <- logMsg:
				case <-runCtx.Done():
					return
				}
			}
		}()

		wg.Wait()
		resourceCancel()
		usageWG.Wait()
		b.recordUsage(connectorID, usage)

		waitErr := cmd.Wait()

		if runCtx.Err() == context.DeadlineExceeded {
			errc <- fmt.Errorf("executor: connector %s timed out after %s", connectorID, b.timeout)
			return
		}
		if scanErr := <-stdoutErrc; scanErr != nil {
			errc <- scanErr
			return
		}
		if waitErr != nil {
			errc <- fmt.Errorf("executor: connector %s exited with error: %w", connectorID, waitErr)
			return
		}
	}()

	return out, errc
}
