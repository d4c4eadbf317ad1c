// Package configfs discovers UVC functions from the USB gadget configfs tree
// and locates the video node the kernel created for each of them.
package configfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kevmo314/go-uvc-gadget/pkg/camera"
	"github.com/kevmo314/go-uvc-gadget/pkg/formats"
	"github.com/kevmo314/go-uvc-gadget/pkg/streaming"
	"go.uber.org/zap"
)

const (
	DefaultRoot    = "/sys/kernel/config/usb_gadget"
	DefaultUDCRoot = "/sys/class/udc"
)

// ErrNoFunctions is returned when no bound gadget carries a UVC function.
var ErrNoFunctions = errors.New("no uvc gadget functions configured")

// Scanner reads UVC function configuration out of configfs.
type Scanner struct {
	Root    string
	UDCRoot string
	// DevRoot is where video nodes are opened, normally /dev.
	DevRoot   string
	Transport streaming.Transport
	Speed     streaming.Speed

	logger *zap.Logger
}

func NewScanner(logger *zap.Logger, root, udcRoot string) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if root == "" {
		root = DefaultRoot
	}
	if udcRoot == "" {
		udcRoot = DefaultUDCRoot
	}
	return &Scanner{
		Root:      root,
		UDCRoot:   udcRoot,
		DevRoot:   "/dev",
		Transport: streaming.TransportBulk,
		Speed:     streaming.SpeedHigh,
		logger:    logger.Named("configfs"),
	}
}

// Discover returns the UVC functions of every gadget bound to a UDC, ordered
// by video node index. Functions whose video node cannot be found are skipped.
func (s *Scanner) Discover() ([]camera.Function, error) {
	gadgets, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoFunctions
		}
		return nil, fmt.Errorf("read gadget root: %w", err)
	}

	var fns []camera.Function
	for _, g := range gadgets {
		if !g.IsDir() {
			continue
		}
		gadgetPath := filepath.Join(s.Root, g.Name())
		udc, err := readString(filepath.Join(gadgetPath, "UDC"))
		if err != nil || udc == "" {
			s.logger.Debug("gadget not bound", zap.String("gadget", g.Name()))
			continue
		}

		dirs, err := filepath.Glob(filepath.Join(gadgetPath, "functions", "uvc.*"))
		if err != nil {
			return nil, err
		}
		sort.Strings(dirs)
		nodes := s.videoNodes(udc)

		for i, dir := range dirs {
			fn, err := s.parseFunction(dir)
			if err != nil {
				s.logger.Warn("skipping function", zap.String("path", dir), zap.Error(err))
				continue
			}
			node, ok := matchNode(nodes, fn.Name, i, len(dirs))
			if !ok {
				s.logger.Warn("no video node for function", zap.String("function", fn.Name), zap.String("udc", udc))
				continue
			}
			fn.ID = node.index
			fn.DevicePath = filepath.Join(s.DevRoot, fmt.Sprintf("video%d", node.index))
			fns = append(fns, fn)
		}
	}
	if len(fns) == 0 {
		return nil, ErrNoFunctions
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].ID < fns[j].ID })
	return fns, nil
}

type videoNode struct {
	index    int
	function string
}

func (s *Scanner) videoNodes(udc string) []videoNode {
	paths, _ := filepath.Glob(filepath.Join(s.UDCRoot, udc, "device", "gadget*", "video4linux", "video*"))
	var nodes []videoNode
	for _, p := range paths {
		idx, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(p), "video"))
		if err != nil {
			continue
		}
		name, _ := readString(filepath.Join(p, "function_name"))
		nodes = append(nodes, videoNode{index: idx, function: name})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].index < nodes[j].index })
	return nodes
}

// matchNode picks the node whose function_name names the function. Kernels
// without function_name are matched by position when the counts agree.
func matchNode(nodes []videoNode, name string, pos, count int) (videoNode, bool) {
	short := strings.TrimPrefix(name, "uvc.")
	for _, n := range nodes {
		if n.function != "" && (n.function == name || n.function == short) {
			return n, true
		}
	}
	if len(nodes) == count && nodes[pos].function == "" {
		return nodes[pos], true
	}
	return videoNode{}, false
}

func (s *Scanner) parseFunction(dir string) (camera.Function, error) {
	name := filepath.Base(dir)
	fn := camera.Function{
		Name:               name,
		Role:               camera.RoleFromName(name),
		Transport:          s.Transport,
		Speed:              s.Speed,
		StreamingInterface: 1,
	}

	if v, err := readUint(filepath.Join(dir, "control", "bInterfaceNumber")); err == nil {
		fn.ControlInterface = uint8(v)
	}
	if v, err := readUint(filepath.Join(dir, "streaming", "bInterfaceNumber")); err == nil {
		fn.StreamingInterface = uint8(v)
	}
	if v, err := readUint(filepath.Join(dir, "streaming_maxpacket")); err == nil && v > 0 {
		// High bandwidth endpoints split maxpacket over up to three
		// transactions per microframe.
		fn.Mult = uint32((v - 1) / 1024)
		fn.MaxPacket = uint32((v + uint64(fn.Mult)) / uint64(fn.Mult+1))
	}
	if v, err := readUint(filepath.Join(dir, "streaming_maxburst")); err == nil {
		fn.MaxBurst = uint32(v)
	}

	table, err := parseFormats(filepath.Join(dir, "streaming"))
	if err != nil {
		return fn, err
	}
	fn.Formats = table
	return fn, nil
}

type indexedFormat struct {
	index int
	desc  formats.FormatDescriptor
}

func parseFormats(streamingDir string) (formats.Table, error) {
	var found []indexedFormat
	for _, kind := range []string{"uncompressed", "mjpeg", "framebased"} {
		dirs, _ := os.ReadDir(filepath.Join(streamingDir, kind))
		for _, d := range dirs {
			if !d.IsDir() {
				continue
			}
			dir := filepath.Join(streamingDir, kind, d.Name())
			f, err := formatOf(kind, dir)
			if err != nil {
				return nil, err
			}
			idx, err := readUint(filepath.Join(dir, "bFormatIndex"))
			if err != nil {
				// Unlinked from the streaming header.
				continue
			}
			frames, err := parseFrames(dir)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", dir, err)
			}
			found = append(found, indexedFormat{
				index: int(idx),
				desc:  formats.FormatDescriptor{Format: f, Frames: frames},
			})
		}
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%s: no formats", streamingDir)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })
	table := make(formats.Table, len(found))
	for i, f := range found {
		table[i] = f.desc
	}
	return table, table.Validate()
}

func formatOf(kind, dir string) (formats.Format, error) {
	switch kind {
	case "mjpeg":
		return formats.FormatMJPEG, nil
	}
	guid, err := os.ReadFile(filepath.Join(dir, "guidFormat"))
	if err != nil {
		if kind == "framebased" {
			return formats.FormatH264, nil
		}
		return formats.FormatUnknown, err
	}
	cf, err := formats.CompressionFormatFromDescriptor(guid)
	if err != nil {
		return formats.FormatUnknown, fmt.Errorf("%s: %w", dir, err)
	}
	f := formats.FormatFromGUID(cf)
	if f == formats.FormatUnknown {
		return f, fmt.Errorf("%s: unsupported guidFormat %s", dir, cf)
	}
	return f, nil
}

type indexedFrame struct {
	index int
	frame formats.Frame
}

func parseFrames(formatDir string) ([]formats.Frame, error) {
	entries, err := os.ReadDir(formatDir)
	if err != nil {
		return nil, err
	}
	var found []indexedFrame
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(formatDir, e.Name())
		w, err := readUint(filepath.Join(dir, "wWidth"))
		if err != nil {
			continue
		}
		h, err := readUint(filepath.Join(dir, "wHeight"))
		if err != nil {
			return nil, err
		}
		intervals, err := readUints(filepath.Join(dir, "dwFrameInterval"))
		if err != nil {
			return nil, err
		}
		sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
		idx, err := readUint(filepath.Join(dir, "bFrameIndex"))
		if err != nil {
			idx = uint64(len(found) + 1)
		}
		found = append(found, indexedFrame{
			index: int(idx),
			frame: formats.Frame{Width: uint16(w), Height: uint16(h), Intervals: intervals},
		})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })
	frames := make([]formats.Frame, len(found))
	for i, f := range found {
		frames[i] = f.frame
	}
	return frames, nil
}

func readString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readUint(path string) (uint64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 0, 32)
}

func readUints(path string) ([]uint32, error) {
	s, err := readString(path)
	if err != nil {
		return nil, err
	}
	var out []uint32
	for _, f := range strings.Fields(s) {
		v, err := strconv.ParseUint(f, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}
