// Package ditaa renders ASCII-art diagrams to PNG images by running the
// external ditaa tool.
//
// # Overview
//
// A [Builder] owns the image directory of one build output. [Builder.Render]
// derives a content digest from the diagram text, the per-call options and
// the configured tool command (see [cache.ImageKey]), and produces the image
// "<prefix>-<digest>.png" under "<output>/_images". An image already present
// there is reused without running anything, so identical diagrams render once
// per output directory.
//
// # Failure handling
//
// The builder keeps a sticky failure flag for the current run. It is set when
// the tool cannot be found or exits with a nonzero status, and while it is set
// every uncached render returns [StatusSkipped] without launching a process.
// [Builder.Reset] clears it when a new run starts.
//
//   - Tool not found: a warning is logged and the result is [StatusSkipped].
//   - Nonzero exit: a [*RenderError] carrying the captured output is returned.
//   - Any other launch or I/O failure: a coded internal error is returned.
//
// The tool is given the diagram twice: as a temporary input file and on
// standard input. Some builds of the tool exit without reading standard input;
// the resulting broken pipe is expected and the exit status decides the
// outcome.
//
// # Remote mirror
//
// [WithRemote] attaches a [cache.Cache] that mirrors rendered images, so
// builders on different machines share work. Remote failures never fail a
// render.
package ditaa
