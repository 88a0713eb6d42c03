// Package dictload loads gzip-compressed dictionary files over HTTP with a
// local cache-aside store.
//
// A CachingLoader checks the local store before touching the network. On a
// miss it fetches and decompresses the remote resource, hands the payload to
// the caller, and writes it to the store in the background. When no
// persistent store is available, or it fails to open, the loader quietly
// degrades to network-only loading: the store never causes a load to fail.
//
// Basic usage:
//
//	loader, err := dictload.New(
//	    dictload.WithBaseURL("https://cdn.example.com/dict/"),
//	    dictload.WithSQLiteStore("/var/cache/dictload"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer loader.Close()
//
//	base, err := loader.Load(ctx, "base.dat.gz")
//
// Cached records are never expired or revalidated. Clearing the store is
// the only way to pick up a changed remote resource.
package dictload
