package fs

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"bazil.org/fuse"
)

func TestFileOperations(t *testing.T) {
	vfs, _ := setupTestFS(t)
	ctx := context.Background()
	root := rootDir(t, vfs)

	n, _, err := root.Create(ctx, &fuse.CreateRequest{Name: "testfile.txt", Mode: 0644}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	file := n.(*File)

	h, err := file.Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenReadWrite}, &fuse.OpenResponse{})
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	handle := h.(*Handle)

	t.Run("WriteAndRead", func(t *testing.T) {
		wresp := &fuse.WriteResponse{}
		if err := handle.Write(ctx, &fuse.WriteRequest{Data: []byte("test file content")}, wresp); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
		if wresp.Size != 17 {
			t.Errorf("Expected 17 bytes written, got %d", wresp.Size)
		}

		rresp := &fuse.ReadResponse{}
		if err := handle.Read(ctx, &fuse.ReadRequest{Offset: 5, Size: 4}, rresp); err != nil {
			t.Fatalf("Failed to read: %v", err)
		}
		if string(rresp.Data) != "file" {
			t.Errorf("Expected %q, got %q", "file", rresp.Data)
		}
	})

	t.Run("FileAttributes", func(t *testing.T) {
		attr := &fuse.Attr{}
		if err := file.Attr(ctx, attr); err != nil {
			t.Fatalf("Failed to get file attributes: %v", err)
		}
		if attr.Size != 17 {
			t.Errorf("Expected size 17, got %d", attr.Size)
		}
		if attr.Nlink != 1 {
			t.Errorf("Expected nlink 1, got %d", attr.Nlink)
		}
	})

	t.Run("SetattrSize", func(t *testing.T) {
		resp := &fuse.SetattrResponse{}
		req := &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 4}
		if err := file.Setattr(ctx, req, resp); err != nil {
			t.Fatalf("Failed to truncate: %v", err)
		}
		if resp.Attr.Size != 4 {
			t.Errorf("Expected size 4, got %d", resp.Attr.Size)
		}

		req = &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 6}
		if err := file.Setattr(ctx, req, resp); err != nil {
			t.Fatalf("Failed to extend: %v", err)
		}
		rresp := &fuse.ReadResponse{}
		if err := handle.Read(ctx, &fuse.ReadRequest{Size: 100}, rresp); err != nil {
			t.Fatalf("Failed to read: %v", err)
		}
		if string(rresp.Data) != "test\x00\x00" {
			t.Errorf("Expected zero padding, got %q", rresp.Data)
		}
	})

	t.Run("SetattrModeAndOwner", func(t *testing.T) {
		resp := &fuse.SetattrResponse{}
		req := &fuse.SetattrRequest{
			Valid: fuse.SetattrMode | fuse.SetattrUid,
			Mode:  0600,
			Uid:   42,
		}
		if err := file.Setattr(ctx, req, resp); err != nil {
			t.Fatalf("Setattr failed: %v", err)
		}
		if resp.Attr.Mode != 0600 {
			t.Errorf("Expected mode 0600, got %v", resp.Attr.Mode)
		}
		if resp.Attr.Uid != 42 || resp.Attr.Gid != 1000 {
			t.Errorf("Expected owner 42:1000, got %d:%d", resp.Attr.Uid, resp.Attr.Gid)
		}
	})

	t.Run("SetattrAtimeKeepsMtime", func(t *testing.T) {
		before := &fuse.Attr{}
		if err := file.Attr(ctx, before); err != nil {
			t.Fatalf("Attr failed: %v", err)
		}

		stamp := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
		resp := &fuse.SetattrResponse{}
		if err := file.Setattr(ctx, &fuse.SetattrRequest{Valid: fuse.SetattrAtime, Atime: stamp}, resp); err != nil {
			t.Fatalf("Setattr failed: %v", err)
		}
		if !resp.Attr.Atime.Equal(stamp) {
			t.Errorf("Expected atime %v, got %v", stamp, resp.Attr.Atime)
		}
		if !resp.Attr.Mtime.Equal(before.Mtime) {
			t.Errorf("Expected mtime to stay %v, got %v", before.Mtime, resp.Attr.Mtime)
		}
	})

	t.Run("Release", func(t *testing.T) {
		if err := handle.Release(ctx, &fuse.ReleaseRequest{}); err != nil {
			t.Errorf("Release failed: %v", err)
		}
	})
}

func TestHandleSurvivesRename(t *testing.T) {
	vfs, _ := setupTestFS(t)
	ctx := context.Background()
	root := rootDir(t, vfs)

	_, h, err := root.Create(ctx, &fuse.CreateRequest{Name: "old", Mode: 0644}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := root.Rename(ctx, &fuse.RenameRequest{OldName: "old", NewName: "new"}, root); err != nil {
		t.Fatalf("Failed to rename: %v", err)
	}

	if err := h.(*Handle).Write(ctx, &fuse.WriteRequest{Data: []byte("moved")}, &fuse.WriteResponse{}); err != nil {
		t.Fatalf("Write through renamed handle failed: %v", err)
	}
	n, _ := root.Lookup(ctx, "new")
	attr := &fuse.Attr{}
	if err := n.Attr(ctx, attr); err != nil {
		t.Fatalf("Attr failed: %v", err)
	}
	if attr.Size != 5 {
		t.Errorf("Expected size 5, got %d", attr.Size)
	}
}

func TestXattrOperations(t *testing.T) {
	vfs, _ := setupTestFS(t)
	ctx := context.Background()
	root := rootDir(t, vfs)

	n, _, err := root.Create(ctx, &fuse.CreateRequest{Name: "x", Mode: 0644}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	file := n.(*File)

	t.Run("SetAndGet", func(t *testing.T) {
		if err := file.Setxattr(ctx, &fuse.SetxattrRequest{Name: "user.tag", Xattr: []byte("blue")}); err != nil {
			t.Fatalf("Setxattr failed: %v", err)
		}
		resp := &fuse.GetxattrResponse{}
		if err := file.Getxattr(ctx, &fuse.GetxattrRequest{Name: "user.tag"}, resp); err != nil {
			t.Fatalf("Getxattr failed: %v", err)
		}
		if string(resp.Xattr) != "blue" {
			t.Errorf("Expected blue, got %q", resp.Xattr)
		}
	})

	t.Run("List", func(t *testing.T) {
		resp := &fuse.ListxattrResponse{}
		if err := file.Listxattr(ctx, &fuse.ListxattrRequest{}, resp); err != nil {
			t.Fatalf("Listxattr failed: %v", err)
		}
		if string(resp.Xattr) != "user.tag\x00" {
			t.Errorf("Unexpected list %q", resp.Xattr)
		}
	})

	t.Run("RemoveAndMissing", func(t *testing.T) {
		if err := file.Removexattr(ctx, &fuse.RemovexattrRequest{Name: "user.tag"}); err != nil {
			t.Fatalf("Removexattr failed: %v", err)
		}
		err := file.Getxattr(ctx, &fuse.GetxattrRequest{Name: "user.tag"}, &fuse.GetxattrResponse{})
		if err != fuse.ErrNoXattr {
			t.Errorf("Expected ErrNoXattr, got %v", err)
		}
		err = file.Removexattr(ctx, &fuse.RemovexattrRequest{Name: "user.tag"})
		if err != fuse.ErrNoXattr {
			t.Errorf("Expected ErrNoXattr, got %v", err)
		}
	})

	t.Run("DirectoriesCarryXattrs", func(t *testing.T) {
		if err := root.Setxattr(ctx, &fuse.SetxattrRequest{Name: "user.root", Xattr: []byte("1")}); err != nil {
			t.Fatalf("Setxattr on root failed: %v", err)
		}
	})

	t.Run("NodeGoneAfterUnlink", func(t *testing.T) {
		if err := root.Remove(ctx, &fuse.RemoveRequest{Name: "x"}); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		err := file.Setxattr(ctx, &fuse.SetxattrRequest{Name: "user.late", Xattr: []byte("1")})
		if !errors.Is(err, syscall.ENOENT) {
			t.Errorf("Expected ENOENT on a removed node, got %v", err)
		}
	})
}

func TestHandleSurvivesUndoneRename(t *testing.T) {
	vfs, e := setupTestFS(t)
	ctx := context.Background()
	root := rootDir(t, vfs)

	n, h, err := root.Create(ctx, &fuse.CreateRequest{Name: "old", Mode: 0644}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := root.Rename(ctx, &fuse.RenameRequest{OldName: "old", NewName: "new"}, root); err != nil {
		t.Fatalf("Failed to rename: %v", err)
	}

	replay, err := e.Undo()
	if err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	vfs.Invalidate(replay)

	if got := n.(*File).Path(); got != "/old" {
		t.Errorf("Expected node to follow the undone rename to /old, got %q", got)
	}
	if err := h.(*Handle).Read(ctx, &fuse.ReadRequest{Size: 10}, &fuse.ReadResponse{}); err != nil {
		t.Fatalf("Read through handle after undo failed: %v", err)
	}
	again, err := root.Lookup(ctx, "old")
	if err != nil {
		t.Fatalf("Failed to lookup: %v", err)
	}
	if again != n {
		t.Error("Expected the original node back under its old name")
	}
	if _, err := root.Lookup(ctx, "new"); !errors.Is(err, syscall.ENOENT) {
		t.Errorf("Expected ENOENT for the undone name, got %v", err)
	}

	replay, err = e.Redo()
	if err != nil {
		t.Fatalf("Redo failed: %v", err)
	}
	vfs.Invalidate(replay)
	if got := n.(*File).Path(); got != "/new" {
		t.Errorf("Expected node to follow the redone rename to /new, got %q", got)
	}
	if err := h.(*Handle).Write(ctx, &fuse.WriteRequest{Data: []byte("still open")}, &fuse.WriteResponse{}); err != nil {
		t.Fatalf("Write through handle after redo failed: %v", err)
	}
}

func TestOversizedWriteReturnsEFBIG(t *testing.T) {
	vfs, _ := setupTestFS(t)
	ctx := context.Background()
	root := rootDir(t, vfs)

	n, h, err := root.Create(ctx, &fuse.CreateRequest{Name: "big", Mode: 0644}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	err = h.(*Handle).Write(ctx, &fuse.WriteRequest{Offset: 1 << 62, Data: []byte("xy")}, &fuse.WriteResponse{})
	if !errors.Is(err, syscall.EFBIG) {
		t.Errorf("Expected EFBIG, got %v", err)
	}
	err = n.(*File).Setattr(ctx, &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 1 << 40}, &fuse.SetattrResponse{})
	if !errors.Is(err, syscall.EFBIG) {
		t.Errorf("Expected EFBIG for truncate, got %v", err)
	}
}
