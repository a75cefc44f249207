// Package tipwatch groups and counts live-stream chat events offline, without
// a monitoring session. It applies the same extraction, filtering and
// per-group caps as the tipwatch command.
//
// Quick start:
//
//	d, err := tipwatch.New(tipwatch.WithSortMode("group"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	d.Add(tipwatch.Record{ID: "1", Text: "[メッセージ] ：hi 【alice】"})
//	for _, g := range d.Snapshot().Groups {
//	    fmt.Println(g.Key, g.Header)
//	}
//
// A Digest is safe for concurrent use.
package tipwatch
