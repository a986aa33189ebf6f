// Package toolchain renders command templates into argument vectors and runs
// them as child processes.
//
// Templates are plain strings with {{name}} placeholders. They are the
// contract between the build pipeline and the native compiler, archiver and
// linker of a platform:
//
//	compile: clang++ -c {{src}} -o {{tgt}} -I{{includes}}
//	archive: ar rcs {{tgt}} {{objs}}
//	link:    clang++ {{src}} -o {{tgt}} -L{{libdirs}} -l{{libs}}
//
// Render tokenizes a template before substituting values, so arguments are
// never re-split on whitespace a value happens to contain.
package toolchain
