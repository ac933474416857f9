// Package pixelsafe converts untrusted documents into safe PDFs by
// rendering them to raw pixels inside a disposable sandbox and rebuilding
// the PDF from those pixels outside of it.
//
// # Quick Start
//
// Pick an isolation backend, create a converter, and convert a document:
//
//	provider, err := container.New(container.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	conv, err := pixelsafe.NewConverter(provider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conv.Close()
//
//	doc, err := pixelsafe.NewFileDocument("invoice.docx", pixelsafe.DocumentOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := conv.Convert(ctx, doc); err != nil {
//	    log.Fatal(err)
//	}
//	// invoice-safe.pdf now sits next to invoice.docx.
//
// # Conversion Pipeline
//
// Each conversion follows these stages:
//
//  1. The backend starts the converter child in its own process group.
//  2. The document is written to the child's stdin, which is then closed.
//  3. The child answers with a page count followed by width, height and
//     RGB pixels for every page (big-endian 16-bit integers).
//  4. Every page is validated, rendered to a one-page PDF and spilled to
//     a private working directory.
//  5. The pages are merged and atomically moved to the output path.
//
// The child is never trusted: every count and dimension is bounded before
// use, a truncated stream fails the conversion, and the child is stopped,
// then killed, whatever happens.
//
// # Isolation Backends
//
// The isolation directory provides the Provider implementations: container
// (Podman or Docker with no network and no capabilities), bwrap
// (bubblewrap namespaces) and dummy (no isolation, for tests only).
//
// # Errors
//
// Failures are reported as *ConversionError. Its Kind tells whether the
// child broke the protocol, hung, or exited with a documented error code:
//
//	var ce *pixelsafe.ConversionError
//	if errors.As(err, &ce) && ce.Kind == pixelsafe.KindExitCode {
//	    fmt.Println(ce.Message)
//	}
//
// # Parallel Processing
//
// For batch conversion, use ConverterPool. Its size should not exceed the
// backend's MaxParallelConversions:
//
//	size := pixelsafe.ResolvePoolSize(0, provider.MaxParallelConversions())
//	pool := pixelsafe.NewConverterPool(size, func() (*pixelsafe.Converter, error) {
//	    return pixelsafe.NewConverter(provider)
//	})
//	defer pool.Close()
//
//	conv, err := pool.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Release(conv)
//	err = conv.Convert(ctx, doc)
package pixelsafe
