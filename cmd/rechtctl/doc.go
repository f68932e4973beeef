// Command rechtctl drives the case and summons API from a terminal: it manages cases,
// walks the section review loop and follows generations until they settle.
package main
