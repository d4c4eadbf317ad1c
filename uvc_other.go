//go:build !linux || !(amd64 || arm64 || arm)

package uvc

func openNode(path string) (Node, error) {
	return nil, ErrNoNode
}
