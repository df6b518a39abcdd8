package mocks

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	stdsync "sync"

	"github.com/dl-alexandre/gosync/internal/remote"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/spf13/afero"
)

// RealRootID is the id the alias "root" resolves to
const RealRootID = "0AROOT"

// Remote is an in-memory drive implementing remote.Service. Every mutation,
// whether made by the code under test or by the test itself, is appended to
// a change log served by GetChangesSince.
type Remote struct {
	mu       stdsync.Mutex
	fs       afero.Fs
	files    map[string]*types.DriveFile
	content  map[string][]byte
	changes  []types.Change
	calls    map[string]int
	failures map[string][]error
	nextID   int

	// Account is reported by About
	Account string
	// QuotaLimit is reported by About
	QuotaLimit int64
	// PageSize bounds the number of changes per page
	PageSize int
	// DownloadHook runs before every download; a non-nil error fails it and
	// removes whatever the hook left at the destination
	DownloadHook func(entry *types.DriveFile, destPath string) error
}

var _ remote.Service = (*Remote)(nil)

// NewRemote creates an empty drive whose downloads and uploads use fs
func NewRemote(fs afero.Fs) *Remote {
	r := &Remote{
		fs:       fs,
		files:    make(map[string]*types.DriveFile),
		content:  make(map[string][]byte),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		Account:  "user@example.com",
		PageSize: 100,
	}
	r.files[RealRootID] = &types.DriveFile{ID: RealRootID, Name: "My Drive", MimeType: utils.MimeTypeFolder}
	return r
}

// ErrUnreachable returns the error the remote layer raises on connectivity loss
func ErrUnreachable() error {
	return utils.NewCLIError(utils.ErrCodeInternetUnreachable, "internet connection unreachable").
		WithRetryable(true).Err()
}

func notFound(id string) error {
	return utils.NewCLIError(utils.ErrCodeFileNotFound, fmt.Sprintf("file %s not found", id)).Err()
}

// FailNext makes the next call of method return err. Calls queue up in order.
func (r *Remote) FailNext(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[method] = append(r.failures[method], err)
}

// Calls returns how often method was invoked
func (r *Remote) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// TotalCalls returns the number of calls across all methods
func (r *Remote) TotalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}

// ResetCalls clears the call counters
func (r *Remote) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[string]int)
}

// enter records a call and pops an injected failure; callers hold mu
func (r *Remote) enter(method string) error {
	r.calls[method]++
	if queued := r.failures[method]; len(queued) > 0 {
		r.failures[method] = queued[1:]
		return queued[0]
	}
	return nil
}

func (r *Remote) resolve(id string) string {
	if id == utils.RootFolderID {
		return RealRootID
	}
	return id
}

func (r *Remote) newID(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

func (r *Remote) logChange(id string, removed bool) {
	change := types.Change{FileID: id, Removed: removed}
	r.changes = append(r.changes, change)
}

// AddFolder creates a folder as another client would
func (r *Remote) AddFolder(parentID, name string) *types.DriveFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addFolder(parentID, name)
}

func (r *Remote) addFolder(parentID, name string) *types.DriveFile {
	f := &types.DriveFile{
		ID:       r.newID("folder"),
		Name:     name,
		MimeType: utils.MimeTypeFolder,
		Parents:  []string{r.resolve(parentID)},
	}
	r.files[f.ID] = f
	r.logChange(f.ID, false)
	return copyFile(f)
}

// AddFile creates a file with data as another client would
func (r *Remote) AddFile(parentID, name string, data []byte) *types.DriveFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addFile(parentID, name, data)
}

func (r *Remote) addFile(parentID, name string, data []byte) *types.DriveFile {
	f := &types.DriveFile{
		ID:           r.newID("file"),
		Name:         name,
		MimeType:     "application/octet-stream",
		Size:         int64(len(data)),
		MD5Checksum:  utils.MD5Bytes(data),
		ModifiedTime: "2026-01-01T00:00:00Z",
		Parents:      []string{r.resolve(parentID)},
	}
	r.files[f.ID] = f
	r.content[f.ID] = append([]byte(nil), data...)
	r.logChange(f.ID, false)
	return copyFile(f)
}

// AddTypedFile creates a file with an explicit content type
func (r *Remote) AddTypedFile(parentID, name, mimeType string, data []byte) *types.DriveFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.addFile(parentID, name, data)
	r.files[f.ID].MimeType = mimeType
	f.MimeType = mimeType
	return f
}

// AddNative creates a document without binary content
func (r *Remote) AddNative(parentID, name, mimeType string) *types.DriveFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := &types.DriveFile{
		ID:       r.newID("doc"),
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{r.resolve(parentID)},
	}
	r.files[f.ID] = f
	r.logChange(f.ID, false)
	return copyFile(f)
}

// SetContent replaces the content of id as another client would
func (r *Remote) SetContent(id string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setContent(id, data)
}

func (r *Remote) setContent(id string, data []byte) {
	f := r.files[id]
	f.Size = int64(len(data))
	f.MD5Checksum = utils.MD5Bytes(data)
	r.content[id] = append([]byte(nil), data...)
	r.logChange(id, false)
}

// TrashRemote moves id to the trash as another client would
func (r *Remote) TrashRemote(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[id].Trashed = true
	r.logChange(id, false)
}

// DeleteRemote permanently deletes id and its descendants
func (r *Remote) DeleteRemote(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, childID := range r.childIDs(id, true) {
		delete(r.files, childID)
		delete(r.content, childID)
	}
	delete(r.files, id)
	delete(r.content, id)
	r.logChange(id, true)
}

// MoveRemote reparents and optionally renames id as another client would
func (r *Remote) MoveRemote(id, newParentID, newName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.files[id]
	f.Parents = []string{r.resolve(newParentID)}
	if newName != "" {
		f.Name = newName
	}
	r.logChange(id, false)
}

// Content returns the stored content of id
func (r *Remote) Content(id string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.content[id]...)
}

// File returns a copy of the metadata of id or nil
func (r *Remote) File(id string) *types.DriveFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[r.resolve(id)]; ok {
		return copyFile(f)
	}
	return nil
}

// FindPath returns the non-trashed entry at the slash separated path below the root
func (r *Remote) FindPath(p string) *types.DriveFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := RealRootID
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" {
			continue
		}
		next := ""
		for _, id := range r.childIDs(current, false) {
			if f := r.files[id]; f.Name == part && !f.Trashed {
				next = id
				break
			}
		}
		if next == "" {
			return nil
		}
		current = next
	}
	return copyFile(r.files[current])
}

// Count returns the number of non-trashed entries named name
func (r *Remote) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.files {
		if f.Name == name && !f.Trashed {
			n++
		}
	}
	return n
}

// childIDs lists the children of id sorted by name, recursively if deep
func (r *Remote) childIDs(id string, deep bool) []string {
	var ids []string
	for childID, f := range r.files {
		if f.HasParent(id) {
			ids = append(ids, childID)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := r.files[ids[i]], r.files[ids[j]]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	if deep {
		for _, childID := range append([]string(nil), ids...) {
			ids = append(ids, r.childIDs(childID, true)...)
		}
	}
	return ids
}

func (r *Remote) About(ctx context.Context) (*types.About, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("About"); err != nil {
		return nil, err
	}
	var usage int64
	for _, data := range r.content {
		usage += int64(len(data))
	}
	return &types.About{EmailAddress: r.Account, QuotaLimit: r.QuotaLimit, QuotaUsage: usage}, nil
}

func (r *Remote) RootID(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("RootID"); err != nil {
		return "", err
	}
	return RealRootID, nil
}

func (r *Remote) ListChildren(ctx context.Context, folderID string) ([]*types.DriveFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListChildren"); err != nil {
		return nil, err
	}
	folderID = r.resolve(folderID)
	if _, ok := r.files[folderID]; !ok {
		return nil, notFound(folderID)
	}
	var out []*types.DriveFile
	for _, id := range r.childIDs(folderID, false) {
		if f := r.files[id]; !f.Trashed {
			out = append(out, copyFile(f))
		}
	}
	return out, nil
}

func (r *Remote) GetMetadata(ctx context.Context, fileID string) (*types.DriveFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("GetMetadata"); err != nil {
		return nil, err
	}
	f, ok := r.files[r.resolve(fileID)]
	if !ok {
		return nil, notFound(fileID)
	}
	return copyFile(f), nil
}

func (r *Remote) CreateFolder(ctx context.Context, name, parentID string) (*types.DriveFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("CreateFolder"); err != nil {
		return nil, err
	}
	if _, ok := r.files[r.resolve(parentID)]; !ok {
		return nil, notFound(parentID)
	}
	return r.addFolder(parentID, name), nil
}

func (r *Remote) Upload(ctx context.Context, localPath, parentID string) (*types.DriveFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("Upload"); err != nil {
		return nil, err
	}
	if _, ok := r.files[r.resolve(parentID)]; !ok {
		return nil, notFound(parentID)
	}
	info, err := r.fs.Stat(localPath)
	if err != nil {
		return nil, err
	}
	name := path.Base(strings.ReplaceAll(localPath, "\\", "/"))
	if info.IsDir() {
		return r.addFolder(parentID, name), nil
	}
	data, err := afero.ReadFile(r.fs, localPath)
	if err != nil {
		return nil, err
	}
	return r.addFile(parentID, name, data), nil
}

func (r *Remote) UpdateContent(ctx context.Context, fileID, localPath string) (*types.DriveFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("UpdateContent"); err != nil {
		return nil, err
	}
	if _, ok := r.files[fileID]; !ok {
		return nil, notFound(fileID)
	}
	data, err := afero.ReadFile(r.fs, localPath)
	if err != nil {
		return nil, err
	}
	r.setContent(fileID, data)
	return copyFile(r.files[fileID]), nil
}

func (r *Remote) Download(ctx context.Context, entry *types.DriveFile, destPath string) error {
	r.mu.Lock()
	if err := r.enter("Download"); err != nil {
		r.mu.Unlock()
		return err
	}
	data, ok := r.content[entry.ID]
	hook := r.DownloadHook
	r.mu.Unlock()

	if !ok && entry.Size > 0 {
		return notFound(entry.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if hook != nil {
		if err := hook(entry, destPath); err != nil {
			_ = r.fs.Remove(destPath)
			return err
		}
	}
	return afero.WriteFile(r.fs, destPath, data, 0644)
}

func (r *Remote) Trash(ctx context.Context, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("Trash"); err != nil {
		return err
	}
	f, ok := r.files[fileID]
	if !ok {
		return notFound(fileID)
	}
	f.Trashed = true
	r.logChange(fileID, false)
	return nil
}

func (r *Remote) Rename(ctx context.Context, fileID, newName string) (*types.DriveFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("Rename"); err != nil {
		return nil, err
	}
	f, ok := r.files[fileID]
	if !ok {
		return nil, notFound(fileID)
	}
	f.Name = newName
	r.logChange(fileID, false)
	return copyFile(f), nil
}

func (r *Remote) Move(ctx context.Context, fileID, newParentID, oldParentID string) (*types.DriveFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("Move"); err != nil {
		return nil, err
	}
	f, ok := r.files[fileID]
	if !ok {
		return nil, notFound(fileID)
	}
	if _, ok := r.files[r.resolve(newParentID)]; !ok {
		return nil, notFound(newParentID)
	}
	f.Parents = []string{r.resolve(newParentID)}
	r.logChange(fileID, false)
	return copyFile(f), nil
}

func (r *Remote) GetStartToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("GetStartToken"); err != nil {
		return "", err
	}
	return strconv.Itoa(len(r.changes)), nil
}

func (r *Remote) GetChangesSince(ctx context.Context, token string) (*types.ChangeList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("GetChangesSince"); err != nil {
		return nil, err
	}
	start, err := strconv.Atoi(token)
	if err != nil || start < 0 || start > len(r.changes) {
		return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument, fmt.Sprintf("invalid page token %q", token)).Err()
	}

	end := start + r.PageSize
	if end > len(r.changes) {
		end = len(r.changes)
	}
	list := &types.ChangeList{}
	for _, c := range r.changes[start:end] {
		if !c.Removed {
			if f, ok := r.files[c.FileID]; ok {
				c.File = copyFile(f)
			}
		}
		list.Changes = append(list.Changes, c)
	}
	if end < len(r.changes) {
		list.NextPageToken = strconv.Itoa(end)
	} else {
		list.NewStartPageToken = strconv.Itoa(len(r.changes))
	}
	return list, nil
}

func copyFile(f *types.DriveFile) *types.DriveFile {
	cp := *f
	cp.Parents = append([]string(nil), f.Parents...)
	return &cp
}
