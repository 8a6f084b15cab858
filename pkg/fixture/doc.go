// Package fixture loads a site description from YAML: principals, folders,
// documents, grants and optional access checks.
//
//	principals:
//	  - {id: 7, username: carol, role: USER}
//	folders:
//	  - {id: 10, name: Protocols}
//	  - {id: 11, name: Amendments, parent: 10}
//	documents:
//	  - {id: 100, title: Protocol v3, type: REPORT, folder: 10}
//	grants:
//	  - {folder: 10, role: AUDITOR, level: READ}
//	  - {document: 100, user: 7, level: WRITE}
//	checks:
//	  - {user: 7, document: 100, level: WRITE, expect: true}
//
// Ids in the file are local to the file. Apply creates the entries and
// reports the ids the stores assigned. Errors name the offending entry and
// its line.
package fixture
