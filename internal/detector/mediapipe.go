package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const scriptName = "holistic_service.py"

// ErrScriptNotFound is returned when the MediaPipe helper script is missing.
var ErrScriptNotFound = errors.New(scriptName + " not found")

// helperProcess is a running MediaPipe Holistic helper. Requests are a
// 4-byte big-endian length followed by JPEG bytes; each reply is one JSON
// line.
type helperProcess struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out *bufio.Reader
}

func startHelper(python, script string, args ...string) (*helperProcess, error) {
	cmd := exec.Command(python, append([]string{script}, args...)...)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mediapipe helper: %w", err)
	}
	log.Printf("[detector] Started MediaPipe helper (pid %d)", cmd.Process.Pid)
	return &helperProcess{cmd: cmd, in: in, out: bufio.NewReader(out)}, nil
}

func (p *helperProcess) roundTrip(jpeg []byte) ([]byte, error) {
	msg := make([]byte, 4+len(jpeg))
	binary.BigEndian.PutUint32(msg, uint32(len(jpeg)))
	copy(msg[4:], jpeg)

	if _, err := p.in.Write(msg); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}
	line, err := p.out.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return line, nil
}

// stop closes the helper's stdin, which ends its read loop, and waits.
func (p *helperProcess) stop() error {
	p.in.Close()
	return p.cmd.Wait()
}

// MediaPipeDetector implements Detector with a Python MediaPipe Holistic
// helper. The helper starts on the first frame and stops after the idle
// timeout; a broken exchange kills it so the next frame starts a new one.
type MediaPipeDetector struct {
	config Config
	script string

	mu       sync.Mutex
	proc     *helperProcess
	idle     *time.Timer
	lastUsed time.Time
}

// NewMediaPipeDetector checks that the helper script exists and returns a
// detector. No process is started yet.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	script := config.Script
	if script == "" {
		script = findMediaPipeScript()
	}
	if script == "" {
		return nil, ErrScriptNotFound
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScriptNotFound, err)
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}
	return &MediaPipeDetector{config: config, script: script}, nil
}

// Detect encodes frame as JPEG and returns the helper's landmarks.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) (*Holistic, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.proc == nil {
		if d.proc, err = startHelper(d.python(), d.script, d.args()...); err != nil {
			return nil, err
		}
	}

	line, err := d.proc.roundTrip(buf.GetBytes())
	if err != nil {
		d.stopLocked()
		return nil, err
	}
	d.touch()

	return decodeResponse(line)
}

// Close stops the helper process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

func (d *MediaPipeDetector) python() string {
	if d.config.Python != "" {
		return d.config.Python
	}
	if p := findVenvPython(); p != "" {
		return p
	}
	return "python3"
}

func (d *MediaPipeDetector) args() []string {
	return []string{
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinDetectionConf, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	}
}

// touch records use and arms the idle timer. Must be called with mu held.
func (d *MediaPipeDetector) touch() {
	d.lastUsed = time.Now()
	if d.idle != nil {
		d.idle.Reset(d.config.IdleTimeout)
		return
	}
	d.idle = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.proc == nil || time.Since(d.lastUsed) < d.config.IdleTimeout {
			return
		}
		log.Printf("[detector] Stopping idle MediaPipe helper")
		d.stopLocked()
	})
}

// stopLocked stops the helper if it runs. Must be called with mu held.
func (d *MediaPipeDetector) stopLocked() error {
	if d.idle != nil {
		d.idle.Stop()
		d.idle = nil
	}
	if d.proc == nil {
		return nil
	}
	err := d.proc.stop()
	d.proc = nil
	if err != nil {
		log.Printf("[detector] MediaPipe helper exited: %v", err)
	}
	return err
}

type response struct {
	Holistic
	Error string `json:"error,omitempty"`
}

func decodeResponse(line []byte) (*Holistic, error) {
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("mediapipe: %s", resp.Error)
	}
	return &resp.Holistic, nil
}

// findMediaPipeScript looks for the helper under scripts/ relative to the
// working directory, the executable and ~/.biomech.
func findMediaPipeScript() string {
	var candidates []string
	for _, dir := range searchDirs() {
		candidates = append(candidates, filepath.Join(dir, "scripts", scriptName))
	}
	return firstExisting(candidates...)
}

// findVenvPython looks for a virtual environment interpreter in the same
// places as the script.
func findVenvPython() string {
	var candidates []string
	for _, dir := range searchDirs() {
		candidates = append(candidates, filepath.Join(dir, "venv", "bin", "python"))
	}
	return firstExisting(candidates...)
}

func searchDirs() []string {
	dirs := []string{".", ".."}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".biomech"))
	}
	return dirs
}

func firstExisting(candidates ...string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
