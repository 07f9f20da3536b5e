// Package rodsession implements render.Session on top of a Chromium
// browser driven through go-rod.
//
// A Browser is launched once per run (or attached to an already running
// browser through its DevTools control URL). Every call to NewSession
// opens an isolated incognito page, so parallel workers never share
// cookies, storage or navigation state.
//
// # Usage
//
//	b, err := rodsession.Launch(ctx, rodsession.WithHeadless(true))
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
//
//	s, err := b.NewSession(ctx)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
package rodsession
