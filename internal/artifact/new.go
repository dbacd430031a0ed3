package artifact

import "fmt"

// New selects the Local or Remote implementation based on the IS_LOCAL
// configuration flag, so callers never branch on storage mode
// themselves.
func New(isLocal bool, localRoot, remoteBaseURL string) (Store, error) {
	if isLocal {
		if localRoot == "" {
			return nil, fmt.Errorf("local artifact store requires STORAGE_ROOT")
		}
		return NewLocalStore(localRoot), nil
	}
	if remoteBaseURL == "" {
		return nil, fmt.Errorf("remote artifact store requires a file server base URL")
	}
	return NewRemoteStore(remoteBaseURL), nil
}
