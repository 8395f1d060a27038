// Package tbl exposes the Go APIs behind the tiny self-bootstrapping web
// launcher: a single binary that backgrounds itself, shallow-clones a git
// repository holding a web UI into the user's config directory, serves it
// on an auto-selected loopback port, and hands the operator's browser a
// one-time URL token that is exchanged for a session cookie.
//
// # Running a server
//
//	cfg := tbl.Config{
//	    GitURL: "https://github.com/you/your-web.git",
//	    Addr:   "127.0.0.1:1234",
//	}
//	srv, err := tbl.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(srv.BootstrapURL())
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until an authenticated shutdown request arrives or
// Shutdown is called. While running, the instance announces itself through
// a run record (pid, port, session secret, TLS flag) that later
// invocations use to re-attach or to stop it; see the client package for
// the standalone stop protocol.
//
// Authorization is a single per-run secret: the /bootstrap endpoint trades
// the URL token for a cookie, and every privileged endpoint compares that
// cookie against the in-memory secret. Restarting the server invalidates
// all previous cookies.
package tbl
