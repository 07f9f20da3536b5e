// Package rendertest provides a scripted, in-memory render.Session for
// tests, in the spirit of net/http/httptest.
//
// A Site is a set of named HTML documents, URL routes to those documents
// and click transitions between them. Clicking an element that matches a
// transition's selector while its source document is shown swaps the
// session to the target document, optionally after a lag measured in
// queries, which lets tests exercise asynchronous re-rendering. Element
// handles survive a swap when a node with the same tag exists at the same
// position in the new document, mirroring how a reactive page re-renders
// in place.
//
//	site := rendertest.NewSite().
//	    Doc("p1", page1).
//	    Doc("p2", page2).
//	    Route("https://example.com/r", "p1")
//	site.On("p1", "li.ant-pagination-next", "p2")
package rendertest
