//go:build linux && (amd64 || arm64 || arm)

package uvc

import "github.com/kevmo314/go-uvc-gadget/pkg/v4l2"

var _ Node = (*v4l2.Node)(nil)

func openNode(path string) (Node, error) {
	n, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	return n, nil
}
