// Package depgraph builds the dependency graph of a [descriptor.Set].
//
// Nodes live in an arena and are referred to by [NodeID]. Each node carries one [Edge] per injectable dependency,
// including dependencies inherited from its base chain. An edge's target contract is resolved to the candidate nodes
// that can satisfy it:
//
//  1. A node whose TypeID equals the contract.
//  2. A node that declares the contract.
//  3. A node that declares a contract extending the target, directly or transitively.
//  4. An open generic node declaring a contract whose instantiation matches the target, eg. "Repo[T]" matches
//     "Repo[User]".
//
// Abstract and static nodes are never candidates. Collection edges target every candidate. Single edges target every
// candidate too, but also select a winner: the candidate with the most specific match in the order above, with ties
// going to the last candidate in discovery order.
//
// Configuration bindings are not graph edges.
package depgraph
